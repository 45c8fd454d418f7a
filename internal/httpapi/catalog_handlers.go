package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"geovisor.org/internal/store"
)

func (a *API) listCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := store.ParseCatalog(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	entries, err := a.deps.Reference.ListCatalog(r.Context(), c)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) listInfrastructure(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Reference.ListInfrastructure(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
