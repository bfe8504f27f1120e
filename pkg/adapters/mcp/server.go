// Package mcp exposes an interpreter as Model Context Protocol tools, so agents
// can subscribe documents, evaluate them and resolve the effects they wait on.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/dsl"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"
)

// StatsURI is the resource holding interpreter counters.
const StatsURI = "weft://stats"

// Interpreter is the part of weft.Interpreter the MCP server drives.
type Interpreter interface {
	Subscribe(root domain.Expression) weft.Handle
	Unsubscribe(handles ...weft.Handle) []*domain.Effect
	EvaluateFrom(ctx context.Context, h weft.Handle, src ports.EffectSource) (*weft.Evaluation, error)
	Invalidate(effectID hash.Hash) bool
	GC() []*domain.Effect
	Stats() weft.Stats
}

// EffectView is the wire form of an effect.
type EffectView struct {
	ID      string `json:"id" jsonschema_description:"Effect id (hex hash)"`
	Type    string `json:"type" jsonschema_description:"Effect type"`
	Payload any    `json:"payload,omitempty" jsonschema_description:"Effect payload"`
}

// EvaluationResponse is the result of the evaluate tool.
type EvaluationResponse struct {
	Subscription string               `json:"subscription" jsonschema_description:"Subscription id"`
	Status       domain.OutcomeStatus `json:"status" jsonschema_description:"success, error or pending"`
	Value        any                  `json:"value,omitempty" jsonschema_description:"Value on success"`
	Error        string               `json:"error,omitempty" jsonschema_description:"Message on error"`
	Unresolved   []EffectView         `json:"unresolved,omitempty" jsonschema_description:"Effects still waiting for a resolution"`
}

// SubscribeResponse is the result of the subscribe tool.
type SubscribeResponse struct {
	ID   string `json:"id" jsonschema_description:"Subscription id"`
	Name string `json:"name,omitempty" jsonschema_description:"Document name"`
}

// ResolveResponse is the result of the resolve_effect and invalidate tools.
type ResolveResponse struct {
	ID          string `json:"id" jsonschema_description:"Effect id"`
	Invalidated bool   `json:"invalidated" jsonschema_description:"Whether cached dependents were invalidated"`
}

// FreedResponse lists effects a collection released.
type FreedResponse struct {
	Freed []EffectView `json:"freed"`
}

type subscribeArgs struct {
	Document string `json:"document"`
}

type subscriptionArgs struct {
	Subscription string `json:"subscription"`
}

type resolveArgs struct {
	Resolution string `json:"resolution"`
}

type effectArgs struct {
	EffectID string `json:"effect_id"`
}

// Server wraps an interpreter and exposes it as an MCP server.
type Server struct {
	interp    Interpreter
	store     ports.EffectStore
	decoder   *dsl.Decoder
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDecoder sets the document decoder.
func WithDecoder(d *dsl.Decoder) Option {
	return func(s *Server) {
		s.decoder = d
	}
}

// NewServer creates an MCP server over interp and store.
func NewServer(interp Interpreter, store ports.EffectStore, opts ...Option) *Server {
	s := &Server{
		interp:    interp,
		store:     store,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("weft-mcp", strings.TrimSpace(weft.Version), server.WithToolCapabilities(false)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decoder == nil {
		s.decoder = dsl.NewDecoder(nil)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over Server-Sent Events until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("subscribe",
		mcp.WithDescription("Subscribe an expression document (YAML or JSON) and return its subscription id."),
		mcp.WithString("document", mcp.Required(), mcp.Description("The document text")),
		mcp.WithOutputSchema[SubscribeResponse](),
	), mcp.NewStructuredToolHandler(s.handleSubscribe))

	s.mcpServer.AddTool(mcp.NewTool("evaluate",
		mcp.WithDescription("Evaluate a subscription against the stored effect resolutions."),
		mcp.WithString("subscription", mcp.Required(), mcp.Description("Subscription id")),
		mcp.WithOutputSchema[EvaluationResponse](),
	), mcp.NewStructuredToolHandler(s.handleEvaluate))

	s.mcpServer.AddTool(mcp.NewTool("resolve_effect",
		mcp.WithDescription("Record the value or error of an effect and invalidate what depends on it."),
		mcp.WithString("resolution", mcp.Required(),
			mcp.Description("YAML or JSON object with type, payload, and either value or error")),
		mcp.WithOutputSchema[ResolveResponse](),
	), mcp.NewStructuredToolHandler(s.handleResolve))

	s.mcpServer.AddTool(mcp.NewTool("invalidate",
		mcp.WithDescription("Mark an effect's cached dependents for re-checking."),
		mcp.WithString("effect_id", mcp.Required(), mcp.Description("Effect id")),
		mcp.WithOutputSchema[ResolveResponse](),
	), mcp.NewStructuredToolHandler(s.handleInvalidate))

	s.mcpServer.AddTool(mcp.NewTool("unsubscribe",
		mcp.WithDescription("Drop a subscription and collect the nodes only it used."),
		mcp.WithString("subscription", mcp.Required(), mcp.Description("Subscription id")),
		mcp.WithOutputSchema[FreedResponse](),
	), mcp.NewStructuredToolHandler(s.handleUnsubscribe))

	s.mcpServer.AddTool(mcp.NewTool("gc",
		mcp.WithDescription("Run a major garbage collection."),
		mcp.WithOutputSchema[FreedResponse](),
	), mcp.NewStructuredToolHandler(s.handleGC))
}

func (s *Server) handleSubscribe(ctx context.Context, _ mcp.CallToolRequest, args subscribeArgs) (SubscribeResponse, error) {
	doc, err := s.decoder.Parse([]byte(args.Document))
	if err != nil {
		return SubscribeResponse{}, fmt.Errorf("invalid document: %w", err)
	}
	h := s.interp.Subscribe(doc.Root)
	s.logger.Info("MCP: subscribed", "subscription", h, "document", doc.Name)
	return SubscribeResponse{ID: string(h), Name: doc.Name}, nil
}

func (s *Server) handleEvaluate(ctx context.Context, _ mcp.CallToolRequest, args subscriptionArgs) (EvaluationResponse, error) {
	h := weft.Handle(args.Subscription)
	ev, err := s.interp.EvaluateFrom(ctx, h, s.store)
	if err != nil {
		return EvaluationResponse{}, err
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
	return resp, nil
}

func (s *Server) handleResolve(ctx context.Context, _ mcp.CallToolRequest, args resolveArgs) (ResolveResponse, error) {
	// Decoded like documents so payloads hash the same way.
	var r dsl.EffectResolution
	if err := yaml.Unmarshal([]byte(args.Resolution), &r); err != nil {
		return ResolveResponse{}, fmt.Errorf("invalid resolution: %w", err)
	}
	if r.Type == "" {
		return ResolveResponse{}, errors.New("effect type is required")
	}

	e := r.Effect()
	var err error
	if r.Error != "" {
		err = s.store.Reject(ctx, e, r.Error)
	} else {
		err = s.store.Resolve(ctx, e, r.Value)
	}
	if err != nil {
		return ResolveResponse{}, fmt.Errorf("store: %w", err)
	}
	return ResolveResponse{ID: e.ID.String(), Invalidated: s.interp.Invalidate(e.ID)}, nil
}

func (s *Server) handleInvalidate(ctx context.Context, _ mcp.CallToolRequest, args effectArgs) (ResolveResponse, error) {
	id, err := hash.Parse(args.EffectID)
	if err != nil {
		return ResolveResponse{}, err
	}
	return ResolveResponse{ID: id.String(), Invalidated: s.interp.Invalidate(id)}, nil
}

func (s *Server) handleUnsubscribe(ctx context.Context, _ mcp.CallToolRequest, args subscriptionArgs) (FreedResponse, error) {
	freed := s.interp.Unsubscribe(weft.Handle(args.Subscription))
	return s.forget(ctx, freed)
}

func (s *Server) handleGC(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (FreedResponse, error) {
	return s.forget(ctx, s.interp.GC())
}

func (s *Server) forget(ctx context.Context, freed []*domain.Effect) (FreedResponse, error) {
	if len(freed) > 0 {
		ids := make([]hash.Hash, len(freed))
		for i, e := range freed {
			ids[i] = e.ID
		}
		if err := s.store.Forget(ctx, ids...); err != nil {
			return FreedResponse{}, fmt.Errorf("forget: %w", err)
		}
	}
	return FreedResponse{Freed: effectViews(freed)}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(StatsURI, "Interpreter statistics",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.interp.Stats())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      StatsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
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
