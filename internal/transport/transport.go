package transport

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/remotestorage/internal/logging"
	"github.com/google/uuid"
)

// Request is one credential negotiation call.
type Request struct {
	Kind          string
	CorrelationID string
	Endpoint      string
	Path          string
	Headers       map[string]string
	Query         map[string]string
}

// Response is what comes back for a Request. Err is set when the exchange
// failed below the application level; StatusCode is HTTP-like otherwise.
type Response struct {
	Kind          string
	CorrelationID string
	StatusCode    int
	Body          []byte
	Err           error
}

// OK reports a 2xx response without a transport error.
func (r Response) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Channel dispatches requests; responses arrive on the channel's Sink.
type Channel interface {
	Send(ctx context.Context, req Request) error
}

// Sink receives responses from a Channel.
type Sink interface {
	Deliver(resp Response)
}

// Handler processes a response together with the state tracked for it.
type Handler func(resp Response, state any)

// Mux correlates responses on a shared channel with the calls that issued them.
type Mux struct {
	mu       sync.Mutex
	handlers map[string]Handler
	pending  map[string]any
	logger   logging.Logger
}

func NewMux(logger logging.Logger) *Mux {
	return &Mux{
		handlers: make(map[string]Handler),
		pending:  make(map[string]any),
		logger:   logger.With("module", "transport_mux"),
	}
}

// Handle registers h for responses of the given kind, replacing any previous one.
func (m *Mux) Handle(kind string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = h
}

// Track stores per-call state and returns the correlation id to send with
// the request.
func (m *Mux) Track(state any) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.pending[id] = state
	m.mu.Unlock()
	return id
}

// Forget drops tracked state, for requests that were never sent.
func (m *Mux) Forget(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// Pending reports how many calls are awaiting a response.
func (m *Mux) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Deliver routes resp to its handler. Each correlation id is answered at
// most once; late or unknown responses are dropped.
func (m *Mux) Deliver(resp Response) {
	m.mu.Lock()
	state, tracked := m.pending[resp.CorrelationID]
	delete(m.pending, resp.CorrelationID)
	h, handled := m.handlers[resp.Kind]
	m.mu.Unlock()

	ctx := context.Background()
	if !tracked {
		m.logger.Warn(ctx, "response for unknown call dropped", "kind", resp.Kind, "correlation_id", resp.CorrelationID)
		return
	}
	if !handled {
		m.logger.Warn(ctx, "no handler for response", "kind", resp.Kind, "correlation_id", resp.CorrelationID)
		return
	}

	h(resp, state)
}
