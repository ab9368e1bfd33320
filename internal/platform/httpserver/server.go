package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	taskpipeline "taskpipe/contexts/async-delivery/task-pipeline"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	httptransport "taskpipe/contexts/async-delivery/task-pipeline/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "taskpipe/internal/platform/httpserver/docs"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	mux      *http.ServeMux
	server   *http.Server
	logger   *slog.Logger
	addr     string
	pipeline taskpipeline.Module
	realtime http.Handler
	health   HealthCheck
}

type Options struct {
	// Realtime serves the websocket gateway on /ws when set.
	Realtime http.Handler
	Health   HealthCheck
	Logger   *slog.Logger
	Addr     string
}

func New(pipeline taskpipeline.Module, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		pipeline: pipeline,
		realtime: opts.Realtime,
		health:   opts.Health,
	}
	s.registerRoutes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if s.realtime != nil {
		s.mux.Handle("GET /ws", s.realtime)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/workers/{worker_name}/health", s.handleWorkerHealth)
	s.mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /v1/jobs/stats", s.handleQueueStats)
	s.mux.HandleFunc("GET /v1/jobs/{job_id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs", s.handleEnqueueJob)
	s.mux.HandleFunc("POST /v1/jobs/{job_id}/requeue", s.handleRequeueJob)
	s.mux.HandleFunc("GET /v1/outbox/events/{event_id}/status", s.handleEventStatus)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn("health check failed",
				"event", "http_healthz_failed",
				"module", "internal/platform/httpserver",
				"layer", "platform",
				"error", err.Error(),
			)
			writeJSON(w, http.StatusServiceUnavailable, httptransport.HealthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, httptransport.HealthResponse{Status: "ok"})
}

func (s *Server) handleWorkerHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := s.pipeline.Handler.WorkerHealthHandler(r.Context(), r.PathValue("worker_name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := httptransport.ListJobsRequest{
		Status:  query.Get("status"),
		JobType: query.Get("job_type"),
	}
	if limitRaw := query.Get("limit"); limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		req.Limit = limit
	}

	resp, err := s.pipeline.Handler.ListJobsHandler(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.pipeline.Handler.QueueStatsHandler(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "job_id")
	if !ok {
		return
	}
	resp, err := s.pipeline.Handler.GetJobHandler(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req httptransport.EnqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.pipeline.Handler.EnqueueJobHandler(r.Context(), r.Header.Get("Idempotency-Key"), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRequeueJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathID(w, r, "job_id")
	if !ok {
		return
	}
	operator := strings.TrimSpace(r.Header.Get("X-Operator-Id"))
	resp, err := s.pipeline.Handler.RequeueJobHandler(r.Context(), jobID, operator)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEventStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "event_id")
	if !ok {
		return
	}
	resp, err := s.pipeline.Handler.EventStatusHandler(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrWorkerNotFound):
		writeError(w, http.StatusNotFound, "worker_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrJobNotDead):
		writeError(w, http.StatusConflict, "job_not_dead", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidJob):
		writeError(w, http.StatusBadRequest, "invalid_job", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidJobFilter):
		writeError(w, http.StatusBadRequest, "invalid_job_filter", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, httptransport.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
