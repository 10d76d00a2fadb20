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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"golemfacade/internal/api"
	"golemfacade/internal/config"
	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
)

// facade is the part of Daemon the HTTP API serves.
type facade interface {
	Status(ctx context.Context) Status
	ListJobs(ctx context.Context, since time.Time) ([]jobs.Job, error)
	Job(ctx context.Context, id string) (*jobs.Job, error)
	CurrentJob() (jobs.Job, bool)
	Events(limit int) []golem.Event
	LogStream() *logging.StreamHub
	StartGolem(ctx context.Context) (golem.Snapshot, error)
	StopGolem(ctx context.Context) (golem.Snapshot, error)
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	facade facade

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, f facade, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || f == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		facade: f,
	}
	// Start and stop block until the facade settles, so writes may take as
	// long as a full startup or two grace periods.
	writeTimeout := cfg.YagnaStartupTimeout() + 2*cfg.StopGrace() + 30*time.Second
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Paths.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(authMiddleware(token))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/current", s.handleCurrentJob)
		r.Get("/jobs/{id}", s.handleJob)
		r.Get("/events", s.handleEvents)
		r.Get("/logs", s.handleLogs)
		r.Post("/golem/start", s.handleGolemStart)
		r.Post("/golem/stop", s.handleGolemStop)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.facade.Status(r.Context()).DTO())
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed
	}
	list, err := s.facade.ListJobs(r.Context(), since)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(list)})
}

func (s *apiServer) handleCurrentJob(w http.ResponseWriter, _ *http.Request) {
	job, ok := s.facade.CurrentJob()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no current job")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	job, err := s.facade.Job(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(*job)})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: api.FromEvents(s.facade.Events(limit))})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	resp, err := QueryLogs(r.Context(), s.facade.LogStream(), LogQuery{
		Since:     since,
		Limit:     limit,
		Follow:    truthy(query.Get("follow")),
		Tail:      truthy(query.Get("tail")),
		Component: query.Get("component"),
		Agreement: query.Get("agreement"),
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func truthy(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func (s *apiServer) handleGolemStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.facade.StartGolem(r.Context())
	s.writeLifecycle(w, snap, err)
}

func (s *apiServer) handleGolemStop(w http.ResponseWriter, r *http.Request) {
	snap, err := s.facade.StopGolem(r.Context())
	s.writeLifecycle(w, snap, err)
}

func (s *apiServer) writeLifecycle(w http.ResponseWriter, snap golem.Snapshot, err error) {
	switch {
	case errors.Is(err, ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.writeJSON(w, http.StatusOK, api.FromSnapshot(snap))
	}
}

// DTO converts the status to its wire form.
func (status Status) DTO() api.DaemonStatus {
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	counts := make(map[string]int, len(status.JobCounts))
	for k, v := range status.JobCounts {
		counts[string(k)] = v
	}
	return api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		JournalPath:  status.JournalPath,
		LockFilePath: status.LockFilePath,
		Golem:        api.FromSnapshot(status.Golem),
		JobCounts:    counts,
		Dependencies: deps,
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
