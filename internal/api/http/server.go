package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"newsreel/discoveryservice/internal/domain"
	"newsreel/discoveryservice/internal/engine"
	"newsreel/discoveryservice/internal/search"
)

// ---------------------------------------------------------------------------
// Collaborator interfaces
// ---------------------------------------------------------------------------

// DiscoveryEngine is the discovery use-case surface the API exposes.
type DiscoveryEngine interface {
	Discover(ctx context.Context, req domain.DiscoverRequest) (domain.DiscoverResult, error)
	AcquireBest(ctx context.Context, ranked []domain.Candidate, cancel domain.CancelCheck, opts engine.AcquireOptions) (domain.AcquisitionResult, error)
	Run(runID string) (domain.DiscoverResult, bool)
	Subscribe() (<-chan domain.ProgressEvent, func())
}

// CatalogDirectory lists the configured clip catalogs and their health.
type CatalogDirectory interface {
	Catalogs() []domain.CatalogInfo
	CatalogDiagnostics() []domain.CatalogDiagnostics
}

// AssetLibrary is the persisted acquisition store.
type AssetLibrary interface {
	List(ctx context.Context, limit, offset int) ([]domain.AssetRecord, error)
	Get(ctx context.Context, runID string) (domain.AssetRecord, error)
	Delete(ctx context.Context, runID string) error
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handlers to the engine and its stores.
type Server struct {
	engine   DiscoveryEngine
	catalogs CatalogDirectory
	assets   AssetLibrary
	logger   *slog.Logger

	wsHub        *wsHub
	cancelEvents func()
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithCatalogs attaches the catalog directory behind /catalogs.
func WithCatalogs(c CatalogDirectory) ServerOption {
	return func(s *Server) { s.catalogs = c }
}

// WithAssets attaches the asset library behind /assets.
func WithAssets(a AssetLibrary) ServerOption {
	return func(s *Server) { s.assets = a }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer builds the API server and starts its WebSocket hub. When
// the engine is present the server subscribes to its progress stream
// and relays every event to connected WebSocket clients.
func NewServer(eng DiscoveryEngine, opts ...ServerOption) *Server {
	s := &Server{
		engine: eng,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	if s.engine != nil {
		events, cancel := s.engine.Subscribe()
		s.cancelEvents = cancel
		go func() {
			for event := range events {
				s.wsHub.BroadcastProgress(event)
			}
		}()
	}
	return s
}

// Close stops the event relay and disconnects all WebSocket clients.
func (s *Server) Close() {
	if s.cancelEvents != nil {
		s.cancelEvents()
	}
	s.wsHub.Close()
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/discover", s.handleDiscover)
	mux.HandleFunc("/discover/stream", s.handleDiscoverStream)
	mux.HandleFunc("/acquire", s.handleAcquire)
	mux.HandleFunc("/assets", s.handleAssets)
	mux.HandleFunc("/assets/", s.handleAssetByRun)
	mux.HandleFunc("/catalogs", s.handleCatalogs)
	mux.HandleFunc("/catalogs/health", s.handleCatalogsHealth)
	mux.HandleFunc("/events", s.handleWS)
	mux.HandleFunc("/image", s.handleImageProxy)

	traced := otelhttp.NewHandler(
		loggingMiddleware(s.logger, mux),
		"discovery-service",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"wsClients": s.wsHub.clientCount(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "discovery engine is not configured")
		return
	}

	var req domain.DiscoverRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.engine.Discover(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrEmptySegment):
			writeError(w, http.StatusBadRequest, "invalid_request", "segment headline or text is required")
		case errors.Is(err, search.ErrNoCatalogs):
			writeError(w, http.StatusServiceUnavailable, "no_catalogs", "no clip catalogs are configured")
		default:
			s.logger.Error("discover failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "discovery failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDiscoverStream runs a discovery and streams its progress as
// SSE frames: bootstrap, zero or more progress events, then either
// result or error, then done.
func (s *Server) handleDiscoverStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "discovery engine is not configured")
		return
	}

	q := r.URL.Query()
	headline := strings.TrimSpace(q.Get("headline"))
	text := strings.TrimSpace(q.Get("text"))
	if headline == "" && text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "headline or text query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	req := domain.DiscoverRequest{
		Headline:          headline,
		Text:              text,
		SequenceIndex:     parseNonNegativeInt(r, "sequenceIndex", 0),
		ExcludeIdentities: parseCSV(q.Get("exclude")),
		RunID:             uuid.NewString(),
	}

	// Subscribe before launching the run so no progress event can slip
	// past between the first publish and the first read.
	events, cancelSub := s.engine.Subscribe()
	defer cancelSub()

	type discoverOutcome struct {
		result domain.DiscoverResult
		err    error
	}
	resultCh := make(chan discoverOutcome, 1)
	go func() {
		result, err := s.engine.Discover(r.Context(), req)
		resultCh <- discoverOutcome{result: result, err: err}
	}()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writeSSEEvent(w, flusher, "bootstrap", map[string]string{"runId": req.RunID})

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				writeSSEEvent(w, flusher, "done", map[string]bool{"final": true})
				return
			}
			if event.RunID != req.RunID {
				continue
			}
			writeSSEEvent(w, flusher, "progress", event)
		case out := <-resultCh:
			// The run has finished publishing; flush whatever progress
			// is still buffered before the final frame.
		drain:
			for {
				select {
				case event := <-events:
					if event.RunID == req.RunID {
						writeSSEEvent(w, flusher, "progress", event)
					}
				default:
					break drain
				}
			}
			if out.err != nil {
				writeSSEEvent(w, flusher, "error", map[string]string{"message": out.err.Error()})
			} else {
				writeSSEEvent(w, flusher, "result", out.result)
			}
			writeSSEEvent(w, flusher, "done", map[string]bool{"final": true})
			return
		}
	}
}

type acquireRequest struct {
	RunID         string             `json:"runId,omitempty"`
	Candidates    []domain.Candidate `json:"candidates,omitempty"`
	WaitForBest   bool               `json:"waitForBest,omitempty"`
	SequenceIndex int                `json:"sequenceIndex,omitempty"`
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "discovery engine is not configured")
		return
	}

	var req acquireRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}

	candidates := req.Candidates
	if len(candidates) == 0 {
		if strings.TrimSpace(req.RunID) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "candidates or runId is required")
			return
		}
		run, ok := s.engine.Run(req.RunID)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "unknown run id")
			return
		}
		candidates = run.Candidates
	}

	cancelled := func() bool {
		select {
		case <-r.Context().Done():
			return true
		default:
			return false
		}
	}

	result, err := s.engine.AcquireBest(r.Context(), candidates, cancelled, engine.AcquireOptions{
		WaitForBest:   req.WaitForBest,
		SequenceIndex: req.SequenceIndex,
		RunID:         req.RunID,
	})
	if err != nil {
		var exhausted *domain.ExhaustionError
		switch {
		case errors.As(err, &exhausted):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   map[string]string{"code": "exhausted", "message": exhausted.Error()},
				"skipped": exhausted.Skipped,
			})
		case errors.Is(err, domain.ErrCancelled):
			writeError(w, http.StatusConflict, "cancelled", "acquisition cancelled")
		default:
			s.logger.Error("acquire failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "acquisition failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.assets == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "asset library is not configured")
		return
	}

	limit := parsePositiveInt(r, "limit", 50)
	offset := parseNonNegativeInt(r, "offset", 0)
	items, err := s.assets.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("asset list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "asset list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func (s *Server) handleAssetByRun(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "asset library is not configured")
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/assets/")
	if runID == "" || strings.Contains(runID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown asset path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.assets.Get(r.Context(), runID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no asset for run "+runID)
				return
			}
			s.logger.Error("asset get failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "asset lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := s.assets.Delete(r.Context(), runID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "no asset for run "+runID)
				return
			}
			s.logger.Error("asset delete failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "asset delete failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "runId": runID})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}

func (s *Server) handleCatalogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.catalogs == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "catalog directory is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.catalogs.Catalogs(),
	})
}

func (s *Server) handleCatalogsHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.catalogs == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "catalog directory is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.catalogs.CatalogDiagnostics(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{hub: s.wsHub, conn: conn, send: make(chan []byte, 256)}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("response encode failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// decodeJSONBody decodes a JSON request body into dst. An empty body
// is tolerated; unknown fields are not.
func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
