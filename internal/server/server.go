// Package server exposes the HTTP API: feed source management, sync
// triggering, and read access to channels and programme windows.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voyagen/guidevault/api"
	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/config"
	"github.com/voyagen/guidevault/internal/models"
	"github.com/voyagen/guidevault/internal/service"
	"github.com/voyagen/guidevault/internal/store"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	store  store.Store
	cfg    *config.Config
	syncer *service.Syncer
	rds    *cache.Redis // nil when REDIS_URL is not set
	mux    *http.ServeMux
	logger zerolog.Logger
}

// New creates a Server and registers routes. rds may be nil; sync requests
// then run inline in a background goroutine instead of being queued.
func New(s store.Store, cfg *config.Config, syncer *service.Syncer, rds *cache.Redis) *Server {
	srv := &Server{
		store:  s,
		cfg:    cfg,
		syncer: syncer,
		rds:    rds,
		mux:    http.NewServeMux(),
		logger: log.With().Str("component", "server").Logger(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Sources
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("POST /api/sources", s.handleAddSource)
	s.mux.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	s.mux.HandleFunc("PATCH /api/sources/{id}", s.handleUpdateSource)
	s.mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)
	s.mux.HandleFunc("POST /api/sources/{id}/sync", s.handleSyncSource)

	// Channels and programmes
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("GET /api/channels/{id}/programs", s.handleChannelPrograms)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s.logger, s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- source handlers ---

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type addSourceRequest struct {
	Name      string `json:"name"`
	XmltvURL  string `json:"xmltv_url"`
	M3uURL    string `json:"m3u_url"`
	UserAgent string `json:"user_agent"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.XmltvURL == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("xmltv_url is required"))
		return
	}
	for _, u := range []string{req.XmltvURL, req.M3uURL} {
		if u == "" {
			continue
		}
		if parsed, err := url.ParseRequestURI(u); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("%q must be a valid http or https URL", u))
			return
		}
	}
	if req.Name == "" {
		req.Name = "epg"
	}

	sourceID, err := s.store.CreateOrGetSource(r.Context(), req.Name, req.XmltvURL, req.M3uURL, req.UserAgent)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"source_id": sourceID})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	src, err := s.store.GetSourceByID(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("source %d not found", sourceID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

type updateSourceRequest struct {
	Name      *string `json:"name"`
	XmltvURL  *string `json:"xmltv_url"`
	M3uURL    *string `json:"m3u_url"`
	UserAgent *string `json:"user_agent"`
	Enabled   *bool   `json:"enabled"`
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	var req updateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	fields := store.SourceUpdate{
		Name:      req.Name,
		XmltvURL:  req.XmltvURL,
		M3uURL:    req.M3uURL,
		UserAgent: req.UserAgent,
		Enabled:   req.Enabled,
	}
	if err := s.store.UpdateSource(r.Context(), sourceID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("source %d not found", sourceID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	src, err := s.store.GetSourceByID(r.Context(), sourceID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteSource(r.Context(), sourceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("source %d not found", sourceID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeNoContent(w)
}

type syncRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSyncSource(w http.ResponseWriter, r *http.Request) {
	sourceID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	var req syncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	}
	mode, err := service.ParseSyncMode(req.Mode)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	src, err := s.store.GetSourceByID(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("source %d not found", sourceID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !src.Enabled {
		writeErr(w, http.StatusConflict, fmt.Errorf("source %d is disabled", sourceID))
		return
	}

	if s.rds != nil {
		if cache.IsLocked(r.Context(), s.rds, cache.SyncLockKey(sourceID)) {
			writeErr(w, http.StatusConflict, fmt.Errorf("source %d is already syncing", sourceID))
			return
		}
		if err := cache.Enqueue(r.Context(), s.rds, cache.DefaultQueue, cache.SyncJob{SourceID: sourceID, Mode: string(mode)}); err != nil {
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("enqueue sync: %w", err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"source_id": sourceID, "mode": mode, "queued": true})
		return
	}

	// No queue available: run in the background with a detached context,
	// since full syncs outlive the HTTP write timeout by far.
	go func() {
		count, err := service.Ingest(context.Background(), s.store, s.syncer, *src, s.cfg.UserAgent, s.cfg.Timeout, mode)
		if err != nil {
			s.logger.Error().Err(err).Int64("source_id", sourceID).Msg("background sync failed")
			return
		}
		s.logger.Info().Int64("source_id", sourceID).Int("channels", count).Msg("background sync finished")
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"source_id": sourceID, "mode": mode, "queued": false})
}

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	var sourceID *int64
	if v := r.URL.Query().Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid source_id: %s", v))
			return
		}
		sourceID = &id
	}
	channels, err := s.store.ListChannels(r.Context(), sourceID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	ch, err := s.store.GetChannelByID(r.Context(), channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("channel %d not found", channelID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleChannelPrograms(w http.ResponseWriter, r *http.Request) {
	channelID, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	now := time.Now().UnixMilli()
	fromMs, err := queryMillis(r, "from", now)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	toMs, err := queryMillis(r, "to", now+24*time.Hour.Milliseconds())
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if fromMs > toMs {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("from must not be after to"))
		return
	}

	programs, err := s.store.ProgramsInWindow(r.Context(), channelID, fromMs, toMs)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, programsResponse(s.logger, programs))
}

// programResponse is a StoredProgram with its provider payload decoded into
// playback fields. Rows whose payload cannot be decoded are still listed,
// with the playback fields omitted.
type programResponse struct {
	models.StoredProgram
	VideoType int    `json:"video_type,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
}

func programsResponse(logger zerolog.Logger, programs []models.StoredProgram) []programResponse {
	out := make([]programResponse, 0, len(programs))
	for _, sp := range programs {
		resp := programResponse{StoredProgram: sp}
		videoType, videoURL, err := models.ParseProviderPayload(sp.InternalProviderData)
		if err != nil {
			logger.Warn().Err(err).Int64("program_id", sp.ID).Msg("undecodable provider payload")
		} else {
			resp.VideoType = videoType
			resp.VideoURL = videoURL
		}
		out = append(out, resp)
	}
	return out
}

// --- middleware ---

// statusWriter captures the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging wraps a handler and logs each request with method, path,
// status, and duration.
func withLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

func queryMillis(r *http.Request, param string, fallback int64) (int64, error) {
	v := r.URL.Query().Get(param)
	if v == "" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s (epoch millis expected)", param, v)
	}
	return ms, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("writeJSON")
	}
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>GuideVault API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
  <style>html{box-sizing:border-box;overflow-y:scroll}*,*:before,*:after{box-sizing:inherit}body{margin:0;background:#fafafa}</style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/docs/openapi.yaml",
      dom_id: "#swagger-ui",
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: "BaseLayout",
    });
  </script>
</body>
</html>`
