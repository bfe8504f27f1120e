package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// maxDocumentSize bounds request bodies.
const maxDocumentSize = 1 << 20

// Interpreter is the part of weft.Interpreter the server drives.
type Interpreter interface {
	Subscribe(root domain.Expression) weft.Handle
	Unsubscribe(handles ...weft.Handle) []*domain.Effect
	EvaluateFrom(ctx context.Context, h weft.Handle, src ports.EffectSource) (*weft.Evaluation, error)
	Invalidate(effectID hash.Hash) bool
	GC() []*domain.Effect
	Stats() weft.Stats
}

// Server serves one interpreter and the effect store it evaluates against.
type Server struct {
	Interpreter Interpreter
	Store       ports.EffectStore
	Streams     *StreamManager

	decoder  *dsl.Decoder
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDecoder sets the decoder used for submitted documents.
func WithDecoder(d *dsl.Decoder) Option {
	return func(s *Server) {
		s.decoder = d
	}
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates a new HTTP handler for the interpreter.
func NewHandler(interp Interpreter, store ports.EffectStore, opts ...Option) http.Handler {
	s := &Server{
		Interpreter: interp,
		Store:       store,
		Streams:     NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decoder == nil {
		s.decoder = dsl.NewDecoder(nil)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/stats", s.GetStats)
	r.Post("/gc", s.CollectGarbage)

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", s.Subscribe)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.Unsubscribe)
			r.Post("/evaluate", s.Evaluate)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	r.Route("/effects", func(r chi.Router) {
		r.Post("/", s.ResolveEffect)
		r.Get("/{id}", s.GetEffect)
		r.Post("/{id}/invalidate", s.InvalidateEffect)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", observability.Handler(s.gatherer))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EffectView is the wire form of an effect.
type EffectView struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EvaluationResponse is the wire form of one evaluation pass.
type EvaluationResponse struct {
	Subscription string               `json:"subscription"`
	Status       domain.OutcomeStatus `json:"status"`
	Value        any                  `json:"value,omitempty"`
	Error        string               `json:"error,omitempty"`
	Unresolved   []EffectView         `json:"unresolved,omitempty"`
}

// FreedResponse lists effects a collection released.
type FreedResponse struct {
	Freed []EffectView `json:"freed"`
}

// Subscribe handles POST /subscriptions. The body is a YAML or JSON document.
func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := s.decoder.Parse(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid document: %v", err), http.StatusBadRequest)
		s.logger.Warn("Subscribe: invalid document", "err", err)
		return
	}

	h := s.Interpreter.Subscribe(doc.Root)
	s.logger.Info("Subscribed", "subscription", h, "document", doc.Name)
	writeJSON(w, s.logger, http.StatusCreated, map[string]string{"id": string(h), "name": doc.Name})
}

// Unsubscribe handles DELETE /subscriptions/{id}.
func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h := weft.Handle(chi.URLParam(r, "id"))
	freed := s.Interpreter.Unsubscribe(h)
	if err := s.forget(r.Context(), freed); err != nil {
		http.Error(w, fmt.Sprintf("Forget error: %v", err), http.StatusInternalServerError)
		return
	}
	s.Streams.Close(string(h))
	writeJSON(w, s.logger, http.StatusOK, FreedResponse{Freed: effectViews(freed)})
}

// Evaluate handles POST /subscriptions/{id}/evaluate, resolving effects from the store.
func (s *Server) Evaluate(w http.ResponseWriter, r *http.Request) {
	h := weft.Handle(chi.URLParam(r, "id"))
	ev, err := s.Interpreter.EvaluateFrom(r.Context(), h, s.Store)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Evaluate error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Evaluate failed", "subscription", h, "err", err)
		return
	}

	resp := EvaluationResponse{
		Subscription: string(h),
		Status:       ev.Outcome.Status,
		Value:        ev.Outcome.Value,
		Unresolved:   effectViews(ev.Unresolved),
	}
	if ev.Outcome.Err != nil {
		resp.Error = ev.Outcome.Err.Error()
	}

	if msg, err := json.Marshal(resp); err == nil {
		s.Streams.Broadcast(string(h), string(msg))
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

// ResolveEffect handles POST /effects. The body (JSON or YAML) names the effect
// by type and payload and carries either a value or an error. Cached dependents are
// invalidated.
func (s *Server) ResolveEffect(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	// Decoded like documents so payloads hash the same way.
	var body dsl.EffectResolution
	if err := yaml.Unmarshal(raw, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.Type == "" {
		http.Error(w, "Effect type is required", http.StatusBadRequest)
		return
	}

	e := body.Effect()
	if body.Error != "" {
		err = s.Store.Reject(r.Context(), e, body.Error)
	} else {
		err = s.Store.Resolve(r.Context(), e, body.Value)
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Store error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Resolve failed", "effect", e.ID, "err", err)
		return
	}

	cached := s.Interpreter.Invalidate(e.ID)
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"id": e.ID.String(), "invalidated": cached})
}

// GetEffect handles GET /effects/{id}.
func (s *Server) GetEffect(w http.ResponseWriter, r *http.Request) {
	id, err := hash.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrResolutionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Store error: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, res)
}

// InvalidateEffect handles POST /effects/{id}/invalidate.
func (s *Server) InvalidateEffect(w http.ResponseWriter, r *http.Request) {
	id, err := hash.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"id": id.String(), "invalidated": s.Interpreter.Invalidate(id)})
}

// CollectGarbage handles POST /gc.
func (s *Server) CollectGarbage(w http.ResponseWriter, r *http.Request) {
	freed := s.Interpreter.GC()
	if err := s.forget(r.Context(), freed); err != nil {
		http.Error(w, fmt.Sprintf("Forget error: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, FreedResponse{Freed: effectViews(freed)})
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, s.Interpreter.Stats())
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"app":     "weft-http",
		"version": strings.TrimSpace(weft.Version),
	})
}

// SubscribeEvents handles GET /subscriptions/{id}/events (SSE). Every evaluation
// of the subscription is pushed as one event.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id := chi.URLParam(r, "id")
	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) forget(ctx context.Context, freed []*domain.Effect) error {
	if len(freed) == 0 || s.Store == nil {
		return nil
	}
	ids := make([]hash.Hash, len(freed))
	for i, e := range freed {
		ids[i] = e.ID
	}
	return s.Store.Forget(ctx, ids...)
}

// StreamManager handles active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // subscription -> set of channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

func (sm *StreamManager) Subscribe(id string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[id]; !ok {
		sm.subscribers[id] = make(map[chan string]struct{})
	}
	sm.subscribers[id][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[id]; ok {
			if _, live := subs[ch]; live {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(sm.subscribers, id)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(id string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[id] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "subscription", id)
		}
	}
}

// Close ends every stream of a subscription.
func (sm *StreamManager) Close(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for ch := range sm.subscribers[id] {
		close(ch)
	}
	delete(sm.subscribers, id)
}

// -- Helpers --

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}

func effectViews(effects []*domain.Effect) []EffectView {
	if len(effects) == 0 {
		return nil
	}
	out := make([]EffectView, len(effects))
	for i, e := range effects {
		out[i] = EffectView{ID: e.ID.String(), Type: e.Type, Payload: e.Payload}
	}
	return out
}
