package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/notifications"
	"geovisor.org/internal/reports"
	"geovisor.org/internal/store"
	"geovisor.org/internal/stream"
)

const testPassword = "s3cret-pass"

var statusNames = map[int64]string{1: "PENDIENTE", 2: "EN_PROCESO", 3: "RESUELTO", 4: "RECHAZADO"}

// memBackend is an in-memory stand-in for the SQL store.
type memBackend struct {
	mu         sync.Mutex
	users      map[int64]auth.Credential
	reports    map[int64]reports.Report
	history    map[int64][]reports.HistoryEntry
	notes      map[int64]notifications.Notification
	nextReport int64
	nextNote   int64
	pingErr    error
}

func int64p(v int64) *int64 { return &v }

func newMemBackend(t *testing.T) *memBackend {
	t.Helper()
	hash, err := auth.PBKDF2Hasher{Rounds: 1000}.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := func(id int64, email string, role auth.Role, status auth.AccountStatus, org *int64, digest string) auth.Credential {
		return auth.Credential{
			Identity: auth.Identity{
				UserID:         id,
				Email:          email,
				FullName:       "user " + email,
				Role:           role,
				Status:         status,
				OrganizationID: org,
			},
			PasswordHash: digest,
		}
	}
	b := &memBackend{
		users: map[int64]auth.Credential{
			10: user(10, "ana@example.org", auth.RoleCitizen, auth.StatusActive, nil, hash),
			11: user(11, "luis@example.org", auth.RoleCitizen, auth.StatusActive, nil, hash),
			20: user(20, "agua@example.org", auth.RoleEntity, auth.StatusActive, int64p(7), hash),
			30: user(30, "mod@example.org", auth.RoleModerator, auth.StatusActive, nil, hash),
			40: user(40, "off@example.org", auth.RoleCitizen, auth.StatusSuspended, nil, hash),
			50: user(50, "old@example.org", auth.RoleCitizen, auth.StatusActive, nil, "$2b$12$legacydigestlegacydigestlegacydigestlegacydigest"),
		},
		reports: map[int64]reports.Report{
			1: {ID: 1, Description: "fuga en la calle", UserID: 10, IncidentTypeID: 1, SeverityID: 1, StatusID: 1, Status: "PENDIENTE", Source: "CIUDADANO", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			2: {ID: 2, Description: "sin presion", UserID: 11, OrganizationID: int64p(7), IncidentTypeID: 2, SeverityID: 2, StatusID: 1, Status: "PENDIENTE", Source: "CIUDADANO", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
		history:    map[int64][]reports.HistoryEntry{},
		notes:      map[int64]notifications.Notification{},
		nextReport: 3,
		nextNote:   1,
	}
	return b
}

func (b *memBackend) FindByID(_ context.Context, userID int64) (auth.Identity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.users[userID]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return c.Identity, nil
}

func (b *memBackend) FindByEmail(_ context.Context, email string) (auth.Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.users {
		if c.Email == email {
			return c, nil
		}
	}
	return auth.Credential{}, auth.ErrNotFound
}

func (b *memBackend) setStatus(userID int64, status auth.AccountStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.users[userID]
	c.Status = status
	b.users[userID] = c
}

func (b *memBackend) ListReports(_ context.Context, scope auth.Scope) ([]reports.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []reports.Report{}
	for _, r := range b.reports {
		if scope.Allows(r.Ownership()) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (b *memBackend) GetReport(_ context.Context, id int64) (reports.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reports[id]
	if !ok {
		return reports.Report{}, reports.ErrNotFound
	}
	return r, nil
}

func (b *memBackend) CreateReport(_ context.Context, in reports.NewReport) (reports.Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := reports.Report{
		ID:             b.nextReport,
		Description:    in.Description,
		Address:        in.Address,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		ImageURL:       in.ImageURL,
		Source:         in.Source,
		CreatedAt:      time.Now().UTC(),
		UserID:         in.Owner.OwnerUser,
		OrganizationID: in.Owner.OwnerOrg,
		IncidentTypeID: in.IncidentTypeID,
		SeverityID:     in.SeverityID,
		StatusID:       reports.InitialStatusID,
		Status:         statusNames[reports.InitialStatusID],
	}
	b.reports[r.ID] = r
	b.nextReport++
	return r, nil
}

func (b *memBackend) ChangeReportStatus(_ context.Context, ch reports.StatusChange) (reports.Transition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.reports[ch.ReportID]
	if !ok {
		return reports.Transition{}, reports.ErrNotFound
	}
	prev := r.StatusID
	r.StatusID = ch.NewStatusID
	r.Status = statusNames[ch.NewStatusID]
	b.reports[r.ID] = r
	b.history[r.ID] = append([]reports.HistoryEntry{{
		ID:               int64(len(b.history[r.ID]) + 1),
		PreviousStatusID: int64p(prev),
		NewStatusID:      ch.NewStatusID,
		Comment:          ch.Comment,
		ActorID:          ch.ActorID,
		ChangedAt:        time.Now().UTC(),
	}}, b.history[r.ID]...)
	b.notes[b.nextNote] = notifications.Notification{
		ID:       b.nextNote,
		UserID:   r.UserID,
		ReportID: int64p(r.ID),
		Kind:     reports.NotificationKindStatusChange,
		Message:  fmt.Sprintf("Tu reporte #%d cambió a estado %s", r.ID, r.Status),
		SentAt:   time.Now().UTC(),
	}
	b.nextNote++
	return reports.Transition{Report: r, PreviousStatusID: prev}, nil
}

func (b *memBackend) ReportHistory(_ context.Context, id int64) ([]reports.HistoryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]reports.HistoryEntry{}, b.history[id]...), nil
}

func (b *memBackend) ListNotifications(_ context.Context, userID int64, unreadOnly bool) ([]notifications.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []notifications.Notification{}
	for _, n := range b.notes {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (b *memBackend) NotificationOwner(_ context.Context, id int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notes[id]
	if !ok {
		return 0, notifications.ErrNotFound
	}
	return n.UserID, nil
}

func (b *memBackend) SetNotificationRead(_ context.Context, id int64, read bool) (notifications.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.notes[id]
	if !ok {
		return notifications.Notification{}, notifications.ErrNotFound
	}
	n.Read = read
	b.notes[id] = n
	return n, nil
}

func (b *memBackend) ListCatalog(_ context.Context, c store.Catalog) ([]store.CatalogEntry, error) {
	if c != store.CatalogReportStatus {
		return []store.CatalogEntry{{Key: "id", ID: 1, Name: "uno"}}, nil
	}
	out := make([]store.CatalogEntry, 0, len(statusNames))
	for id := int64(1); id <= 4; id++ {
		out = append(out, store.CatalogEntry{Key: "id_estado", ID: id, Name: statusNames[id]})
	}
	return out, nil
}

func (b *memBackend) ListInfrastructure(context.Context) ([]store.Infrastructure, error) {
	return []store.Infrastructure{{ID: 1, Name: "Tanque Norte"}}, nil
}

func (b *memBackend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pingErr
}

type apiClient struct {
	baseURL string
	client  *http.Client
	backend *memBackend
	events  *stream.Stream
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	backend := newMemBackend(t)
	codec, err := auth.NewCodec(auth.TokenConfig{Secret: "test-secret", TTL: time.Hour})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	events := stream.New()
	api := New(Deps{
		Login:         auth.NewAuthenticator(backend, codec),
		Resolver:      auth.NewResolver(backend, codec),
		Reports:       reports.NewService(backend, reports.WithPublisher(events)),
		Notifications: notifications.NewService(backend),
		Reference:     backend,
		Ready:         backend,
		Events:        events,
		Version:       "test",
	}, WithLoginRateLimit(100, 100), WithHeartbeat(time.Hour))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		backend: backend,
		events:  events,
		t:       t,
	}
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) obtainToken(email string) string {
	c.t.Helper()
	resp := c.post("/auth/login", map[string]any{
		"correo":   email,
		"password": testPassword,
	}, nil)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	payload := decode[loginResponse](c.t, resp)
	if payload.AccessToken == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.AccessToken
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectError(t *testing.T, resp *http.Response, status int, code, reason string) {
	t.Helper()
	if resp.StatusCode != status {
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["code"] != code {
		t.Fatalf("expected code %q, got %v", code, body["code"])
	}
	if reason != "" && body["reason"] != reason {
		t.Fatalf("expected reason %q, got %v", reason, body["reason"])
	}
	if body["request_id"] == nil {
		t.Fatalf("expected request_id in error body")
	}
}

func TestRootAndHealth(t *testing.T) {
	api := newTestAPI(t)

	root := decode[map[string]any](t, api.get("/", nil, nil))
	if root["message"] != "Geovisor API running" {
		t.Fatalf("unexpected root payload: %v", root)
	}
	health := decode[map[string]any](t, api.get("/health", nil, nil))
	if health["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", health)
	}
	hz := decode[map[string]any](t, api.get("/healthz", nil, nil))
	if hz["service"] != serviceName || hz["version"] != "test" {
		t.Fatalf("unexpected healthz payload: %v", hz)
	}
}

func TestReadyReflectsDatabase(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}

	api.backend.mu.Lock()
	api.backend.pingErr = errors.New("connection refused")
	api.backend.mu.Unlock()

	resp = api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestLoginAndMe(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/auth/login", map[string]any{"email": "agua@example.org", "password": testPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	login := decode[loginResponse](t, resp)
	if login.TokenType != "bearer" || login.User.UserID != 20 || login.User.Role != "ENTITY" {
		t.Fatalf("unexpected login payload: %+v", login)
	}
	if login.User.OrganizationID == nil || *login.User.OrganizationID != 7 {
		t.Fatalf("expected organization 7, got %v", login.User.OrganizationID)
	}
	if !login.ExpiresAt.After(time.Now()) {
		t.Fatalf("token already expired: %v", login.ExpiresAt)
	}

	me := decode[map[string]any](t, api.get("/auth/me", nil, bearerHeader(login.AccessToken)))
	if me["id_usuario"] != float64(20) || me["correo"] != "agua@example.org" {
		t.Fatalf("unexpected me payload: %v", me)
	}
	if _, leaked := me["password"]; leaked {
		t.Fatalf("password leaked in identity")
	}
}

func TestLoginFailures(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"wrong password", map[string]any{"correo": "ana@example.org", "password": "nope"}, http.StatusUnauthorized, codeInvalidCredentials},
		{"unknown email", map[string]any{"correo": "ghost@example.org", "password": testPassword}, http.StatusUnauthorized, codeInvalidCredentials},
		{"email case differs", map[string]any{"correo": "ANA@example.org", "password": testPassword}, http.StatusUnauthorized, codeInvalidCredentials},
		{"suspended account", map[string]any{"correo": "off@example.org", "password": testPassword}, http.StatusForbidden, codeAccountNotActive},
		{"legacy digest", map[string]any{"correo": "old@example.org", "password": testPassword}, http.StatusInternalServerError, codeHashNotMigrated},
		{"missing password", map[string]any{"correo": "ana@example.org"}, http.StatusBadRequest, codeBadRequest},
		{"unknown field", map[string]any{"correo": "ana@example.org", "password": testPassword, "role": "admin"}, http.StatusBadRequest, codeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectError(t, api.post("/auth/login", tc.body, nil), tc.status, tc.code, "")
		})
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	api := newTestAPI(t)

	for _, h := range []map[string]string{
		nil,
		{"Authorization": "Basic abc"},
		{"Authorization": "Bearer not-a-token"},
	} {
		resp := api.get("/reportes", nil, h)
		if got := resp.Header.Get("WWW-Authenticate"); got == "" {
			t.Fatalf("expected WWW-Authenticate header for %v", h)
		}
		expectError(t, resp, http.StatusUnauthorized, codeUnauthorized, "")
	}
}

func TestDeletedUserTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("ana@example.org")

	api.backend.mu.Lock()
	delete(api.backend.users, 10)
	api.backend.mu.Unlock()

	expectError(t, api.get("/reportes", nil, bearerHeader(token)), http.StatusUnauthorized, codeUnauthorized, "")
}

func TestStatusChangeAppliesToIssuedTokens(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("ana@example.org")

	api.backend.setStatus(10, auth.StatusSuspended)
	expectError(t, api.get("/reportes", nil, bearerHeader(token)), http.StatusForbidden, codeForbidden, "ACCOUNT_NOT_ACTIVE")

	// /auth/me only resolves the caller.
	resp := api.get("/auth/me", nil, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected /auth/me to answer suspended callers, got %d", resp.StatusCode)
	}
}

func TestListReportsIsScoped(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		email string
		want  []int64
	}{
		{"ana@example.org", []int64{1}},
		{"luis@example.org", []int64{2}},
		{"agua@example.org", []int64{2}},
		{"mod@example.org", []int64{2, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.email, func(t *testing.T) {
			token := api.obtainToken(tc.email)
			list := decode[[]reports.Report](t, api.get("/reportes", nil, bearerHeader(token)))
			if len(list) != len(tc.want) {
				t.Fatalf("expected %d reports, got %d", len(tc.want), len(list))
			}
			for i, r := range list {
				if r.ID != tc.want[i] {
					t.Fatalf("report %d: expected id %d, got %d", i, tc.want[i], r.ID)
				}
			}
		})
	}
}

func TestGetReportOwnership(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("ana@example.org")

	rep := decode[reports.Report](t, api.get("/reportes/1", nil, bearerHeader(token)))
	if rep.ID != 1 || rep.UserID != 10 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	expectError(t, api.get("/reportes/2", nil, bearerHeader(token)), http.StatusForbidden, codeForbidden, "OWNERSHIP_MISMATCH")
	expectError(t, api.get("/reportes/999", nil, bearerHeader(token)), http.StatusNotFound, codeNotFound, "")
	expectError(t, api.get("/reportes/abc", nil, bearerHeader(token)), http.StatusBadRequest, codeBadRequest, "")
}

func TestCreateReportForcesOwner(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("ana@example.org")

	resp := api.post("/reportes", map[string]any{
		"id_tipo_incidente": 1,
		"id_severidad":      2,
		"descripcion":       "medidor roto",
		"latitud":           "-0.180653",
		"longitud":          "-78.467834",
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/reportes/3" {
		t.Fatalf("unexpected Location: %q", loc)
	}
	created := decode[struct {
		Message string         `json:"message"`
		Report  reports.Report `json:"reporte"`
	}](t, resp)
	if created.Report.UserID != 10 || created.Report.StatusID != reports.InitialStatusID {
		t.Fatalf("unexpected created report: %+v", created.Report)
	}
	if created.Report.Source != reports.DefaultSource {
		t.Fatalf("expected default source, got %q", created.Report.Source)
	}

	expectError(t, api.post("/reportes", map[string]any{
		"id_usuario":        11,
		"id_tipo_incidente": 1,
		"id_severidad":      1,
		"descripcion":       "en nombre de otro",
	}, bearerHeader(token)), http.StatusForbidden, codeForbidden, "IMPERSONATION_ATTEMPT")

	expectError(t, api.post("/reportes", map[string]any{
		"id_tipo_incidente": 1,
		"id_severidad":      1,
		"descripcion":       "",
	}, bearerHeader(token)), http.StatusBadRequest, codeBadRequest, "")

	mod := api.obtainToken("mod@example.org")
	expectError(t, api.post("/reportes", map[string]any{
		"id_tipo_incidente": 1,
		"id_severidad":      1,
		"descripcion":       "moderador",
	}, bearerHeader(mod)), http.StatusForbidden, codeForbidden, "ROLE_NOT_PERMITTED")
}

func TestChangeStatusFlow(t *testing.T) {
	api := newTestAPI(t)
	entity := api.obtainToken("agua@example.org")
	owner := api.obtainToken("luis@example.org")
	citizen := api.obtainToken("ana@example.org")

	expectError(t, api.put("/reportes/2/estado", map[string]any{"id_estado_nuevo": 2}, bearerHeader(citizen)),
		http.StatusForbidden, codeForbidden, "ROLE_NOT_PERMITTED")
	expectError(t, api.put("/reportes/1/estado", map[string]any{"id_estado_nuevo": 2}, bearerHeader(entity)),
		http.StatusForbidden, codeForbidden, "OWNERSHIP_MISMATCH")
	expectError(t, api.put("/reportes/2/estado", map[string]any{"id_estado_nuevo": 2, "id_usuario_accion": 30}, bearerHeader(entity)),
		http.StatusForbidden, codeForbidden, "IMPERSONATION_ATTEMPT")

	resp := api.put("/reportes/2/estado", map[string]any{
		"id_estado_nuevo":   2,
		"id_usuario_accion": 20,
		"comentario":        "cuadrilla asignada",
	}, bearerHeader(entity))
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	updated := decode[struct {
		Message string         `json:"message"`
		Report  reports.Report `json:"reporte"`
	}](t, resp)
	if updated.Message != "updated" || updated.Report.StatusID != 2 || updated.Report.Status != "EN_PROCESO" {
		t.Fatalf("unexpected update payload: %+v", updated)
	}

	history := decode[[]reports.HistoryEntry](t, api.get("/reportes/2/historial", nil, bearerHeader(owner)))
	if len(history) != 1 || history[0].ActorID != 20 || history[0].NewStatusID != 2 {
		t.Fatalf("unexpected history: %+v", history)
	}
	expectError(t, api.get("/reportes/2/historial", nil, bearerHeader(citizen)), http.StatusForbidden, codeForbidden, "OWNERSHIP_MISMATCH")

	inbox := decode[[]notifications.Notification](t, api.get("/notificaciones", nil, bearerHeader(owner)))
	if len(inbox) != 1 || inbox[0].Read || !strings.Contains(inbox[0].Message, "#2") {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}
	noteID := inbox[0].ID

	expectError(t, api.put(fmt.Sprintf("/notificaciones/%d/leer", noteID), nil, bearerHeader(citizen)),
		http.StatusForbidden, codeForbidden, "OWNERSHIP_MISMATCH")

	marked := decode[map[string]any](t, api.put(fmt.Sprintf("/notificaciones/%d/leer", noteID), nil, bearerHeader(owner)))
	if marked["leida"] != true {
		t.Fatalf("expected notification marked read: %v", marked)
	}
	unread := decode[[]notifications.Notification](t, api.get("/notificaciones", url.Values{"no_leidas": {"true"}}, bearerHeader(owner)))
	if len(unread) != 0 {
		t.Fatalf("expected empty unread inbox, got %d", len(unread))
	}

	marked = decode[map[string]any](t, api.put(fmt.Sprintf("/notificaciones/%d/leer", noteID), map[string]any{"leida": false}, bearerHeader(owner)))
	if marked["leida"] != false {
		t.Fatalf("expected notification marked unread: %v", marked)
	}
}

func TestNotificationInboxOfAnotherUser(t *testing.T) {
	api := newTestAPI(t)
	citizen := api.obtainToken("ana@example.org")
	mod := api.obtainToken("mod@example.org")

	expectError(t, api.get("/notificaciones", url.Values{"id_usuario": {"11"}}, bearerHeader(citizen)),
		http.StatusForbidden, codeForbidden, "OWNERSHIP_MISMATCH")

	resp := api.get("/notificaciones", url.Values{"id_usuario": {"11"}}, bearerHeader(mod))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected moderator to read any inbox, got %d", resp.StatusCode)
	}

	expectError(t, api.get("/notificaciones", url.Values{"no_leidas": {"maybe"}}, bearerHeader(citizen)),
		http.StatusBadRequest, codeBadRequest, "")
	expectError(t, api.put("/notificaciones/77/leer", nil, bearerHeader(citizen)), http.StatusNotFound, codeNotFound, "")
}

func TestCatalogsArePublic(t *testing.T) {
	api := newTestAPI(t)

	entries := decode[[]map[string]any](t, api.get("/catalogos/estado-reporte", nil, nil))
	if len(entries) != 4 || entries[0]["id_estado"] != float64(1) || entries[0]["nombre"] != "PENDIENTE" {
		t.Fatalf("unexpected catalog: %v", entries)
	}
	expectError(t, api.get("/catalogos/usuarios", nil, nil), http.StatusNotFound, codeNotFound, "")

	infra := decode[[]map[string]any](t, api.get("/infraestructura", nil, nil))
	if len(infra) != 1 || infra[0]["nombre"] != "Tanque Norte" {
		t.Fatalf("unexpected infrastructure: %v", infra)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	api := newTestAPI(t)

	expectError(t, api.get("/nope", nil, nil), http.StatusNotFound, codeNotFound, "")
	expectError(t, api.do(http.MethodDelete, "/health", nil, nil), http.StatusMethodNotAllowed, codeMethodNotAllowed, "")
}

func TestEventStreamFiltersByReadAccess(t *testing.T) {
	api := newTestAPI(t)
	owner := api.obtainToken("luis@example.org")
	other := api.obtainToken("ana@example.org")
	entity := api.obtainToken("agua@example.org")
	mod := api.obtainToken("mod@example.org")

	ownerEvents := api.subscribe(owner)
	otherEvents := api.subscribe(other)

	resp := api.put("/reportes/2/estado", map[string]any{"id_estado_nuevo": 3}, bearerHeader(entity))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status change failed: %d", resp.StatusCode)
	}
	resp = api.put("/reportes/1/estado", map[string]any{"id_estado_nuevo": 4}, bearerHeader(mod))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status change failed: %d", resp.StatusCode)
	}

	if evt := ownerEvents(); evt.ReportID != 2 || evt.StatusID != 3 || evt.ActorID != 20 {
		t.Fatalf("unexpected owner event: %+v", evt)
	}
	// Report 2 is skipped for the other citizen; the first event they see is
	// about their own report.
	if evt := otherEvents(); evt.ReportID != 1 || evt.StatusID != 4 {
		t.Fatalf("unexpected event for other citizen: %+v", evt)
	}
}

// subscribe opens the SSE stream and returns a function yielding the next event.
func (c *apiClient) subscribe(token string) func() stream.StatusEvent {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c.t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reportes/eventos", nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("open stream: %v", err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected stream status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		c.t.Fatalf("unexpected content type: %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	return func() stream.StatusEvent {
		c.t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				c.t.Fatalf("read stream: %v", err)
			}
			data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
			if !ok {
				continue
			}
			var evt stream.StatusEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				c.t.Fatalf("decode event: %v", err)
			}
			return evt
		}
	}
}
