// Package api provides the HTTP handlers and routing for serve mode.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
	"flinkctl/internal/deploy"
	"flinkctl/internal/health"
	"flinkctl/internal/jobmanager"
)

// maxRequestBodySize limits request bodies to 1MB.
const maxRequestBodySize = 1 << 20

// Deployer runs deployment transactions.
type Deployer interface {
	Submit(ctx context.Context, intent deploy.Intent) (*deploy.Result, error)
	CancelJob(ctx context.Context, jobID string) (string, error)
	CancelJobWithSavepoint(ctx context.Context, jobID, targetDir string) (string, error)
	TriggerSavepoint(ctx context.Context, jobID, targetDir string) (string, error)
}

// JobManager answers read-only cluster queries and jar cleanup.
type JobManager interface {
	ListJobs(ctx context.Context) (*jobmanager.JobList, error)
	JobInfo(ctx context.Context, jobID string) (*jobmanager.JobDetails, error)
	ListJars(ctx context.Context) (*jobmanager.JarList, error)
	DeleteJar(ctx context.Context, jarID string) error
}

// SavepointRequest is the body of POST /v1/jobs/{jobId}/savepoints.
type SavepointRequest struct {
	TargetDirectory string `json:"targetDirectory"`
	CancelJob       bool   `json:"cancelJob"`
}

// SavepointResponse reports where a savepoint was written.
type SavepointResponse struct {
	JobID         string `json:"jobId"`
	SavepointPath string `json:"savepointPath"`
	Cancelled     bool   `json:"cancelled"`
}

// CancelResponse reports the state a cancelled job reached.
type CancelResponse struct {
	JobID string `json:"jobId"`
	State string `json:"state"`
}

// Handler contains HTTP handlers for the deployment API.
type Handler struct {
	deployer Deployer
	jm       JobManager
	health   *health.Checker
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deployer Deployer, jm JobManager, healthChecker *health.Checker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		deployer: deployer,
		jm:       jm,
		health:   healthChecker,
		logger:   logger.With(zap.String("component", "api")),
	}
}

// CreateDeployment handles POST /v1/deployments. It blocks until the
// deployment transaction finishes.
func (h *Handler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var intent deploy.Intent
	if !h.decode(w, r, &intent) {
		return
	}

	res, err := h.deployer.Submit(r.Context(), intent)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, res)
}

// CancelJob handles POST /v1/jobs/{jobId}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	state, err := h.deployer.CancelJob(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, CancelResponse{JobID: jobID, State: state})
}

// CreateSavepoint handles POST /v1/jobs/{jobId}/savepoints.
func (h *Handler) CreateSavepoint(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	var req SavepointRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		path string
		err  error
	)
	if req.CancelJob {
		path, err = h.deployer.CancelJobWithSavepoint(r.Context(), jobID, req.TargetDirectory)
	} else {
		path, err = h.deployer.TriggerSavepoint(r.Context(), jobID, req.TargetDirectory)
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, SavepointResponse{
		JobID:         jobID,
		SavepointPath: path,
		Cancelled:     req.CancelJob,
	})
}

// ListJobs handles GET /v1/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jm.ListJobs(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, jobs)
}

// GetJob handles GET /v1/jobs/{jobId}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jm.JobInfo(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// ListJars handles GET /v1/jars.
func (h *Handler) ListJars(w http.ResponseWriter, r *http.Request) {
	jars, err := h.jm.ListJars(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, jars)
}

// DeleteJar handles DELETE /v1/jars/{jarId}.
func (h *Handler) DeleteJar(w http.ResponseWriter, r *http.Request) {
	if err := h.jm.DeleteJar(r.Context(), chi.URLParam(r, "jarId")); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Livez handles GET /livez. It never touches the job manager.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz. Returns 503 when the job manager is
// unreachable or the service is shutting down.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsReady() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps err onto a status code via apperrors.HTTPStatus.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		h.logger.Error("Request failed", zap.Error(err), zap.String("path", r.URL.Path), zap.Int("status", status))
	} else {
		h.logger.Warn("Client error", zap.Error(err), zap.String("path", r.URL.Path), zap.Int("status", status))
	}
	h.writeError(w, status, err.Error())
}
