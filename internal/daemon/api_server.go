package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"video2notes/internal/api"
	"video2notes/internal/checkpoint"
	"video2notes/internal/config"
	"video2notes/internal/logging"
	"video2notes/internal/runconfig"
	"video2notes/internal/runstore"
	"video2notes/internal/services"
	"video2notes/internal/workflow"
)

const (
	defaultEventLimit = 200
	defaultRunLimit   = 20
	maxBodyBytes      = 1 << 20
	// followWait bounds a long-poll so it finishes inside WriteTimeout.
	followWait = 20 * time.Second
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// apiWriteTimeout must outlast the longest blocking handler, POST
// /api/runs/stop, which waits up to the stop grace plus workflow.StopSlack.
const apiWriteTimeout = 30 * time.Second

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      apiWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requestIDMiddleware(authMiddleware(s.token, fn)))
	}
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/health", s.handleHealth)
	handle("POST /api/runs", s.handleStartRun)
	handle("POST /api/runs/stop", s.handleStopRun)
	handle("GET /api/runs", s.handleListRuns)
	handle("GET /api/runs/{id}", s.handleGetRun)
	handle("GET /api/checkpoints", s.handleCheckpoints)
	handle("POST /api/checkpoints/{stage}", s.handleResolve)
	handle("GET /api/events", s.handleEvents)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

// Addr is the bound listener address, or the configured bind before start.
func (s *apiServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		RunStorePath: status.RunStorePath,
		LockFilePath: status.LockFilePath,
		InboxDir:     status.InboxDir,
		Watching:     status.Watching,
		Run:          api.FromSnapshot(status.Run),
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.daemon.Health(r.Context())
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Ready:        health.Ready,
		Summary:      health.Summary,
		Dependencies: api.FromDependencies(health.Dependencies),
		Stages:       api.FromStageHealth(health.Stages),
	})
}

func (s *apiServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	rc, err := runconfig.DecodeJSON(body)
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.daemon.StartRun(r.Context(), rc)
	switch {
	case err == nil:
		s.log(r).Info("run accepted",
			logging.String(logging.FieldRunID, snap.RunID),
			logging.String("video_path", rc.VideoPath),
		)
		s.writeJSON(w, http.StatusAccepted, api.StartRunResponse{Run: api.FromSnapshot(snap)})
	case errors.Is(err, workflow.ErrRunActive):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrConfiguration):
		s.writeProblem(w, http.StatusBadRequest, err)
	default:
		s.log(r).Error("start run failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleStopRun(w http.ResponseWriter, r *http.Request) {
	err := s.daemon.Workflow().Stop()
	switch {
	case err == nil:
	case errors.Is(err, workflow.ErrNoActiveRun):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, services.ErrTimeout):
		s.log(r).Warn("stop exceeded grace period", logging.Error(err), logging.Alert("stop_timeout"))
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSnapshot(s.daemon.Workflow().Status()))
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.daemon.Runs(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	runs := make([]api.RunSummary, 0, len(records))
	for _, rec := range records {
		runs = append(runs, api.FromRecord(rec))
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: runs})
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.daemon.Run(r.Context(), r.PathValue("id"))
	if errors.Is(err, runstore.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunDetailResponse{Run: api.FromRecordDetail(rec)})
}

func (s *apiServer) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	pending := s.daemon.Workflow().Checkpoints().Pending()
	s.writeJSON(w, http.StatusOK, api.CheckpointListResponse{Checkpoints: api.FromPrompts(pending)})
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	stageName := r.PathValue("stage")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body: "+err.Error())
		return
	}
	if !json.Valid(body) {
		s.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	err = s.daemon.Workflow().ResolveCheckpoint(stageName, json.RawMessage(body))
	switch {
	case err == nil:
		s.log(r).Info("checkpoint resolved", logging.String(logging.FieldStage, stageName))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, checkpoint.ErrAlreadyResolved),
		errors.Is(err, workflow.ErrNotWaiting),
		errors.Is(err, checkpoint.ErrNoCheckpoint):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultEventLimit
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, followWait)
		defer cancel()
	}
	evts, next, err := s.daemon.Workflow().Events().Fetch(ctx, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.EventStreamResponse{Events: api.FromEvents(evts), Next: next})
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

// writeProblem reports a configuration error with its individual problems.
func (s *apiServer) writeProblem(w http.ResponseWriter, status int, err error) {
	resp := api.ErrorResponse{Error: err.Error()}
	var cfgErr *services.ConfigError
	if errors.As(err, &cfgErr) {
		resp.Error = "invalid run configuration"
		resp.Problems = cfgErr.Problems
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) log(r *http.Request) *slog.Logger {
	return logging.WithContext(r.Context(), s.logger)
}
