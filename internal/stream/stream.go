package stream

import (
	"context"
	"sync"
	"time"

	"geovisor.org/internal/auth"
)

// StatusEvent announces that a report moved to a new state.
type StatusEvent struct {
	ReportID         int64     `json:"id_reporte"`
	OwnerUser        int64     `json:"id_usuario"`
	OwnerOrg         *int64    `json:"id_entidad"`
	PreviousStatusID int64     `json:"estado_anterior"`
	StatusID         int64     `json:"estado_nuevo"`
	Status           string    `json:"estado"`
	ActorID          int64     `json:"id_usuario_accion"`
	At               time.Time `json:"fecha_cambio"`
}

// Ownership returns the owner of the report the event is about.
func (e StatusEvent) Ownership() auth.Ownership {
	return auth.Ownership{OwnerUser: e.OwnerUser, OwnerOrg: e.OwnerOrg}
}

// Stream fans status events out to all active subscribers (SSE clients).
// Delivery is best effort: slow subscribers miss events.
type Stream struct {
	mu        sync.RWMutex
	subs      map[int]chan StatusEvent
	next      int
	done      chan struct{}
	closeOnce sync.Once
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan StatusEvent), done: make(chan struct{})}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends or the stream is closed.
func (s *Stream) Subscribe(ctx context.Context) <-chan StatusEvent {
	ch := make(chan StatusEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fans the event out to all subscribers without blocking.
func (s *Stream) Publish(evt StatusEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Close ends every subscription, current and future. Used on shutdown so
// open event streams let the HTTP server drain.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Subscribers returns the number of active subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
