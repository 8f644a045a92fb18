package tbid

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tbi-sim/tbi-core/pkg/config"
	"github.com/tbi-sim/tbi-core/pkg/logger"
	"github.com/tbi-sim/tbi-core/pkg/models"
)

type HTTPServer struct {
	mux      *http.ServeMux
	store    *JobStore
	Executor *JobExecutor
}

func NewHTTPServer(store *JobStore, executor *JobExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/jobs", s.handleJobs)
	s.mux.HandleFunc("/v1/jobs/", s.handleJobByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// handleJobs handles /v1/jobs
func (s *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJobByID handles /v1/jobs/{id} and related endpoints
func (s *HTTPServer) handleJobByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	if strings.HasSuffix(path, ":start") {
		jobID := strings.TrimSuffix(path, ":start")
		if r.Method == http.MethodPost {
			s.handleStartJob(w, r, jobID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, ":stop") {
		jobID := strings.TrimSuffix(path, ":stop")
		if r.Method == http.MethodPost {
			s.handleStopJob(w, r, jobID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/result") {
		jobID := strings.TrimSuffix(path, "/result")
		if r.Method == http.MethodGet {
			s.handleGetResult(w, r, jobID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/metrics/timeseries") {
		jobID := strings.TrimSuffix(path, "/metrics/timeseries")
		if r.Method == http.MethodGet {
			s.handleTimeSeries(w, r, jobID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/metrics") {
		jobID := strings.TrimSuffix(path, "/metrics")
		if r.Method == http.MethodGet {
			s.handleGetMetrics(w, r, jobID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if strings.HasSuffix(path, "/events") {
		jobID := strings.TrimSuffix(path, "/events")
		if r.Method == http.MethodGet {
			s.handleEvents(w, r, jobID)
		} else {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if r.Method == http.MethodGet {
		s.handleGetJob(w, r, path)
	} else {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCreateJob handles POST /v1/jobs
func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID          string `json:"job_id,omitempty"`
		ExperimentYAML string `json:"experiment_yaml"`
		CallbackURL    string `json:"callback_url,omitempty"`
		CallbackSecret string `json:"callback_secret,omitempty"`
		Start          bool   `json:"start,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ExperimentYAML == "" {
		s.writeError(w, http.StatusBadRequest, "experiment_yaml is required")
		return
	}

	// Reject malformed experiments at submission time
	exp, err := config.ParseExperimentYAMLString(req.ExperimentYAML)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid experiment: "+err.Error())
		return
	}

	jobType := models.JobTypeTrain
	if exp.Sample != nil {
		jobType = models.JobTypeSample
	}

	rec, err := s.store.Create(req.JobID, jobType, JobInput{
		ExperimentYAML: req.ExperimentYAML,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			s.writeError(w, http.StatusConflict, err.Error())
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	logger.Info("job created", "job_id", rec.Job.ID, "type", rec.Job.Type)

	if req.Start {
		started, err := s.Executor.Start(rec.Job.ID)
		if err != nil {
			s.writeExecutorError(w, err)
			return
		}
		rec = started
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"job": jobToJSON(rec.Job),
	})
}

// handleListJobs handles GET /v1/jobs with pagination and status filtering
func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var status models.JobStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status = models.JobStatus(strings.ToLower(statusStr))
	}

	recs := s.store.ListFiltered(limit, offset, status)

	jobsJSON := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		jobsJSON = append(jobsJSON, jobToJSON(rec.Job))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs": jobsJSON,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(recs),
		},
	})
}

// handleGetJob handles GET /v1/jobs/{id}
func (s *HTTPServer) handleGetJob(w http.ResponseWriter, _ *http.Request, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := map[string]any{
		"job": jobToJSON(rec.Job),
	}
	if rec.Progress != nil {
		resp["progress"] = rec.Progress
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleStartJob handles POST /v1/jobs/{id}:start
func (s *HTTPServer) handleStartJob(w http.ResponseWriter, _ *http.Request, jobID string) {
	updated, err := s.Executor.Start(jobID)
	if err != nil {
		s.writeExecutorError(w, err)
		return
	}

	logger.Info("job started", "job_id", jobID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job": jobToJSON(updated.Job),
	})
}

// handleStopJob handles POST /v1/jobs/{id}:stop
func (s *HTTPServer) handleStopJob(w http.ResponseWriter, _ *http.Request, jobID string) {
	updated, err := s.Executor.Stop(jobID)
	if err != nil {
		s.writeExecutorError(w, err)
		return
	}

	logger.Info("job cancelled", "job_id", jobID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job": jobToJSON(updated.Job),
	})
}

// handleGetResult handles GET /v1/jobs/{id}/result
func (s *HTTPServer) handleGetResult(w http.ResponseWriter, _ *http.Request, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case rec.SampleResult != nil:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"job_id":        jobID,
			"sample_result": rec.SampleResult,
		})
	case rec.TrainResult != nil:
		s.writeJSON(w, http.StatusOK, map[string]any{
			"job_id":       jobID,
			"train_result": rec.TrainResult,
		})
	default:
		s.writeError(w, http.StatusPreconditionFailed, "result not available")
	}
}

// handleGetMetrics handles GET /v1/jobs/{id}/metrics
func (s *HTTPServer) handleGetMetrics(w http.ResponseWriter, _ *http.Request, jobID string) {
	if _, ok := s.store.Get(jobID); !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	collector, ok := s.store.GetCollector(jobID)
	if !ok || collector == nil {
		s.writeError(w, http.StatusPreconditionFailed, "metrics not available")
		return
	}

	aggregations := make([]map[string]any, 0)
	for _, name := range collector.GetMetricNames() {
		labelCombos := collector.GetLabelsForMetric(name)
		if len(labelCombos) == 0 {
			if agg := collector.GetAggregation(name, nil); agg != nil {
				aggregations = append(aggregations, map[string]any{
					"metric":      name,
					"aggregation": agg,
				})
			}
			continue
		}
		for _, labels := range labelCombos {
			if agg := collector.GetAggregation(name, labels); agg != nil {
				aggregations = append(aggregations, map[string]any{
					"metric":      name,
					"labels":      labels,
					"aggregation": agg,
				})
			}
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  jobID,
		"metrics": aggregations,
	})
}

// handleTimeSeries handles GET /v1/jobs/{id}/metrics/timeseries
func (s *HTTPServer) handleTimeSeries(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, ok := s.store.Get(jobID); !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	collector, ok := s.store.GetCollector(jobID)
	if !ok || collector == nil {
		s.writeError(w, http.StatusPreconditionFailed, "time-series metrics not available")
		return
	}

	metricName := r.URL.Query().Get("metric")
	configLabel := r.URL.Query().Get("config")

	var metricNames []string
	if metricName != "" {
		metricNames = []string{metricName}
	} else {
		metricNames = collector.GetMetricNames()
	}

	points := make([]map[string]any, 0)
	for _, name := range metricNames {
		labelCombos := collector.GetLabelsForMetric(name)
		if len(labelCombos) == 0 {
			labelCombos = []map[string]string{nil}
		}
		for _, labels := range labelCombos {
			if configLabel != "" && labels["config"] != configLabel {
				continue
			}
			for _, p := range collector.GetTimeSeries(name, labels) {
				points = append(points, map[string]any{
					"timestamp": p.Timestamp.Format(time.RFC3339Nano),
					"metric":    p.Name,
					"value":     p.Value,
					"labels":    p.Labels,
				})
			}
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"points": points,
	})
}

// handleEvents handles GET /v1/jobs/{id}/events (SSE)
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, jobID string) {
	rec, ok := s.store.Get(jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	previousStatus := rec.Job.Status
	s.sendSSEEvent(w, "status_change", map[string]any{
		"status": string(rec.Job.Status),
	})

	interval := 1 * time.Second
	if intervalStr := r.URL.Query().Get("interval_ms"); intervalStr != "" {
		if intervalMs, err := strconv.ParseInt(intervalStr, 10, 64); err == nil && intervalMs > 0 {
			interval = time.Duration(intervalMs) * time.Millisecond
		}
	}

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	var lastProgress models.TrainProgress
	haveProgress := false

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rec, ok := s.store.Get(jobID)
			if !ok {
				s.sendSSEEvent(w, "error", map[string]any{"error": "job not found"})
				return
			}

			if rec.Job.Status != previousStatus {
				s.sendSSEEvent(w, "status_change", map[string]any{
					"status": string(rec.Job.Status),
				})
				previousStatus = rec.Job.Status
			}

			if rec.Progress != nil && (!haveProgress || *rec.Progress != lastProgress) {
				s.sendSSEEvent(w, "progress", map[string]any{
					"update":      rec.Progress.Update,
					"best_energy": rec.Progress.BestEnergy,
				})
				lastProgress = *rec.Progress
				haveProgress = true
			}

			if rec.Job.Status.IsTerminal() {
				s.sendSSEEvent(w, "complete", map[string]any{
					"status": string(rec.Job.Status),
				})
				return
			}

			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}
		}
	}
}

// sendSSEEvent writes one Server-Sent Event. Errors are logged only, SSE
// streams are best-effort.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data map[string]any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}

	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		logger.Error("failed to write SSE event header", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event data", "error", err)
		return
	}
}

func (s *HTTPServer) writeExecutorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrJobIDMissing):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrJobTerminal):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

func jobToJSON(job *models.Job) map[string]any {
	return map[string]any{
		"id":                 job.ID,
		"type":               string(job.Type),
		"status":             string(job.Status),
		"created_at_unix_ms": job.CreatedAtUnixMs,
		"started_at_unix_ms": job.StartedAtUnixMs,
		"ended_at_unix_ms":   job.EndedAtUnixMs,
		"error":              job.Error,
	}
}
