package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"elicit/internal/annotations"
	"elicit/internal/api"
	"elicit/internal/config"
	"elicit/internal/events"
	"elicit/internal/logging"
	"elicit/internal/mediastream"
	"elicit/internal/pipeline"
	"elicit/internal/preflight"
	"elicit/internal/services"
)

// multipartOverhead is allowed on top of the audio limit for form fields.
const multipartOverhead = 1 << 20

type apiServer struct {
	cfg     *config.Config
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	media   *mediastream.Server
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		cfg:    cfg,
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		media:  mediastream.NewServer(cfg.ChunkSize(), logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	mux.HandleFunc("GET /api/media", srv.handleMediaList)
	mux.HandleFunc("POST /api/media", srv.handleMediaCreate)
	mux.HandleFunc("GET /api/media/{id}", srv.handleMediaGet)
	// GET also matches HEAD.
	mux.HandleFunc("GET /api/media/{id}/file", srv.handleMediaFile)
	mux.HandleFunc("GET /api/annotations", srv.handleAnnotationList)
	mux.HandleFunc("POST /api/annotations", srv.handleAnnotationCreate)
	mux.HandleFunc("GET /api/annotations/{id}", srv.handleAnnotationGet)
	mux.HandleFunc("DELETE /api/annotations/{id}", srv.handleAnnotationDelete)
	mux.Handle("GET /ws", events.Handler(d.hub, events.SocketOptions{
		SendBuffer:   cfg.Events.SendBuffer,
		WriteTimeout: time.Duration(cfg.Events.WriteTimeoutSeconds) * time.Second,
		PingInterval: time.Duration(cfg.Events.PingIntervalSeconds) * time.Second,
	}, logger))

	srv.handler = withRequestID(mux)
	return srv
}

// withRequestID tags each request context with a correlation id, reusing the
// client's X-Request-ID when present.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	// No read or write timeouts: media streams and the event channel are long-lived.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		// Long-running streams and sockets are cut off.
		_ = server.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	checks := api.FromChecks(preflight.RunAll(r.Context(), s.cfg))
	payload := api.Health{
		Status:        api.HealthStatus(checks),
		Timestamp:     api.FormatTime(time.Now()),
		Observers:     status.Observers,
		Jobs:          api.FromSummary(status.Jobs),
		Transcription: api.TranscriptionStatus(s.cfg.Transcription),
		Enhancement:   api.EnhancementStatus(s.cfg.Enhancement),
		Checks:        checks,
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleMediaList(w http.ResponseWriter, r *http.Request) {
	items, err := s.daemon.store.ListMedia(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.MediaListResponse{Items: api.FromMediaList(items)})
}

func (s *apiServer) handleMediaCreate(w http.ResponseWriter, r *http.Request) {
	var req api.MediaRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	media, err := s.daemon.AddMedia(r.Context(), req.Path, req.Title)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromMedia(media))
}

func (s *apiServer) handleMediaGet(w http.ResponseWriter, r *http.Request) {
	media, ok := s.lookupMedia(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromMedia(media))
}

func (s *apiServer) handleMediaFile(w http.ResponseWriter, r *http.Request) {
	media, ok := s.lookupMedia(w, r)
	if !ok {
		return
	}
	ctx := services.WithMediaID(r.Context(), media.ID)
	s.media.ServeFile(w, r.WithContext(ctx), media.Path)
}

func (s *apiServer) lookupMedia(w http.ResponseWriter, r *http.Request) (*annotations.Media, bool) {
	id, ok := s.pathID(w, r, "media")
	if !ok {
		return nil, false
	}
	media, err := s.daemon.store.GetMedia(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return nil, false
	}
	return media, true
}

func (s *apiServer) handleAnnotationList(w http.ResponseWriter, r *http.Request) {
	var mediaID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("media_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid media_id")
			return
		}
		mediaID = parsed
	}
	jobs, err := s.daemon.store.ListJobs(r.Context(), mediaID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AnnotationListResponse{Items: api.FromJobs(jobs)})
}

func (s *apiServer) handleAnnotationCreate(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxAudioBytes()
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "audio exceeds the upload limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	sub, err := parseSubmission(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "audio file part is required")
		return
	}
	defer file.Close()
	sub.Audio = file
	sub.AudioName = header.Filename

	job, err := s.daemon.scheduler.Submit(r.Context(), sub)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.AnnotationResponse{Item: api.FromJob(job)})
}

func parseSubmission(r *http.Request) (pipeline.Submission, error) {
	var sub pipeline.Submission
	mediaID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("media_id")), 10, 64)
	if err != nil {
		return sub, errors.New("media_id must be an integer")
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("start_time")), 64)
	if err != nil {
		return sub, errors.New("start_time must be a number")
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("end_time")), 64)
	if err != nil {
		return sub, errors.New("end_time must be a number")
	}
	sub.MediaID = mediaID
	sub.StartTime = start
	sub.EndTime = end
	sub.Language = r.FormValue("language")
	return sub, nil
}

func (s *apiServer) handleAnnotationGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "annotation")
	if !ok {
		return
	}
	job, err := s.daemon.store.GetJob(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AnnotationResponse{Item: api.FromJob(job)})
}

func (s *apiServer) handleAnnotationDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "annotation")
	if !ok {
		return
	}
	if _, err := s.daemon.scheduler.Delete(r.Context(), id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) pathID(w http.ResponseWriter, r *http.Request, kind string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid "+kind+" id")
		return 0, false
	}
	return id, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, annotations.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, annotations.ErrNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.String("method", r.Method),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
