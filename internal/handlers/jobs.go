package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phototag/catalog-service/internal/jobs"
	"github.com/phototag/catalog-service/internal/launcher"
)

// StartImportResponse is returned when an import job was launched
type StartImportResponse struct {
	Success     bool  `json:"success" jsonschema:"required"`
	JobID       int64 `json:"job_id" jsonschema:"required"`
	AddedImages int   `json:"added_images" jsonschema:"required,minimum=1"`
}

// StartUpdateResponse is returned when an update job was launched
type StartUpdateResponse struct {
	Success      bool  `json:"success" jsonschema:"required"`
	JobID        int64 `json:"job_id" jsonschema:"required"`
	AddedRecords int   `json:"added_records" jsonschema:"required,minimum=1"`
}

// ImportStatusResponse reports an import job's progress
type ImportStatusResponse struct {
	Success            bool    `json:"success" jsonschema:"required"`
	JobStatus          string  `json:"job_status" jsonschema:"required,enum=pending,enum=running,enum=stopped,enum=completed"`
	Total              int     `json:"total" jsonschema:"required"`
	Pending            int     `json:"pending" jsonschema:"required"`
	NotPending         int     `json:"not_pending" jsonschema:"required"`
	ProcessingFilename *string `json:"processing_filename"`
	Failed             int     `json:"failed"`
	WorkerAlive        bool    `json:"worker_alive"`
}

// UpdateStatusResponse reports an update job's progress
type UpdateStatusResponse struct {
	Success     bool   `json:"success" jsonschema:"required"`
	Status      string `json:"status" jsonschema:"required,enum=pending,enum=running,enum=stopped,enum=completed"`
	Total       int    `json:"total"`
	Pending     int    `json:"pending"`
	NotPending  int    `json:"not_pending"`
	Failed      int    `json:"failed"`
	WorkerAlive bool   `json:"worker_alive"`
}

// StopResponse is returned by the stop operations
type StopResponse struct {
	Success   bool   `json:"success" jsonschema:"required"`
	Message   string `json:"message" jsonschema:"required"`
	JobID     int64  `json:"job_id"`
	JobStatus string `json:"job_status"`
	Purged    int64  `json:"purged"`
}

// PurgeQueueResponse is returned by the queue purge
type PurgeQueueResponse struct {
	Success bool   `json:"success" jsonschema:"required"`
	Kind    string `json:"kind" jsonschema:"required,enum=import,enum=update"`
	Purged  int64  `json:"purged" jsonschema:"required"`
}

// StartImport launches an import job for the owner
// @Summary Start an import job
// @Description Enumerates the content directory, queues new files and starts a worker
// @Tags jobs
// @Produce json
// @Param user_id query int true "Owner id"
// @Success 200 {object} StartImportResponse
// @Failure 400 {object} ErrorResponse "Invalid owner or nothing to import"
// @Failure 409 {object} ErrorResponse "Owner already has an active job"
// @Failure 500 {object} ErrorResponse
// @Router /api/startImport [get]
func (h *Handler) StartImport(c *gin.Context) {
	res, ok := h.launch(c, jobs.KindImport)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, StartImportResponse{Success: true, JobID: res.JobID, AddedImages: res.Queued})
}

// StartUpdate launches a metadata update job for the owner
// @Summary Start a metadata update job
// @Description Reads the metadata file, queues its records and starts a worker
// @Tags jobs
// @Produce json
// @Param user_id query int true "Owner id"
// @Success 200 {object} StartUpdateResponse
// @Failure 400 {object} ErrorResponse "Invalid owner or nothing to update"
// @Failure 409 {object} ErrorResponse "Owner already has an active job"
// @Failure 500 {object} ErrorResponse
// @Router /api/startUpdate [get]
func (h *Handler) StartUpdate(c *gin.Context) {
	res, ok := h.launch(c, jobs.KindUpdate)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, StartUpdateResponse{Success: true, JobID: res.JobID, AddedRecords: res.Queued})
}

func (h *Handler) launch(c *gin.Context, kind jobs.Kind) (launcher.Result, bool) {
	owner, err := positiveID(c, "user_id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid user_id")
		return launcher.Result{}, false
	}

	res, err := h.launcher.Launch(c.Request.Context(), kind, owner)
	if err == nil {
		return res, true
	}

	var conflict *launcher.ConflictError
	switch {
	case errors.As(err, &conflict):
		id := conflict.Job.ID
		c.JSON(http.StatusConflict, ErrorResponse{
			Message:   fmt.Sprintf("an active %s job already exists (%s)", conflict.Job.Kind, conflict.Job.Status),
			JobID:     &id,
			JobStatus: string(conflict.Job.Status),
		})
	case errors.Is(err, launcher.ErrNothingQueued):
		id := res.JobID
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "nothing new to queue",
			JobID:   &id,
		})
	case errors.Is(err, launcher.ErrInvalidOwner):
		respondError(c, http.StatusBadRequest, "invalid user_id")
	default:
		h.internalError(c, "failed to start "+string(kind)+" job", err)
	}
	return launcher.Result{}, false
}

// ImportStatus reports an import job's progress
// @Summary Import job status
// @Tags jobs
// @Produce json
// @Param job_id query int true "Job id"
// @Success 200 {object} ImportStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/importStatus [get]
func (h *Handler) ImportStatus(c *gin.Context) {
	job, ok := h.lookupJob(c, jobs.KindImport)
	if !ok {
		return
	}
	stats, err := h.queue.Stats(c.Request.Context(), job.ID)
	if err != nil {
		h.internalError(c, "failed to read queue", err)
		return
	}

	c.JSON(http.StatusOK, ImportStatusResponse{
		Success:            true,
		JobStatus:          string(job.Status),
		Total:              stats.Total,
		Pending:            stats.Pending,
		NotPending:         stats.NotPending,
		ProcessingFilename: stats.ProcessingPayload,
		Failed:             stats.Failed,
		WorkerAlive:        h.workers.IsRunning(job.ID),
	})
}

// UpdateStatus reports an update job's progress
// @Summary Update job status
// @Tags jobs
// @Produce json
// @Param job_id query int true "Job id"
// @Success 200 {object} UpdateStatusResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/updateStatus [get]
func (h *Handler) UpdateStatus(c *gin.Context) {
	job, ok := h.lookupJob(c, jobs.KindUpdate)
	if !ok {
		return
	}
	stats, err := h.queue.Stats(c.Request.Context(), job.ID)
	if err != nil {
		h.internalError(c, "failed to read queue", err)
		return
	}

	c.JSON(http.StatusOK, UpdateStatusResponse{
		Success:     true,
		Status:      string(job.Status),
		Total:       stats.Total,
		Pending:     stats.Pending,
		NotPending:  stats.NotPending,
		Failed:      stats.Failed,
		WorkerAlive: h.workers.IsRunning(job.ID),
	})
}

// StopImport stops an import job and drops its queued items
// @Summary Stop an import job
// @Description Flags the job stopped; the worker exits at its next checkpoint. The job's queue rows are purged.
// @Tags jobs
// @Accept json
// @Produce json
// @Param job_id query int true "Job id"
// @Success 200 {object} StopResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/stopImport [post]
func (h *Handler) StopImport(c *gin.Context) {
	h.stop(c, jobs.KindImport, true)
}

// StopUpdate stops an update job
// @Summary Stop an update job
// @Tags jobs
// @Accept json
// @Produce json
// @Param job_id query int true "Job id"
// @Success 200 {object} StopResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/stopUpdate [post]
func (h *Handler) StopUpdate(c *gin.Context) {
	h.stop(c, jobs.KindUpdate, false)
}

func (h *Handler) stop(c *gin.Context, kind jobs.Kind, purge bool) {
	job, ok := h.lookupJob(c, kind)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	job, err := h.jobs.Stop(ctx, job.ID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respondError(c, http.StatusNotFound, "job not found")
			return
		}
		h.internalError(c, "failed to stop job", err)
		return
	}

	var purged int64
	if purge {
		if purged, err = h.queue.PurgeJob(ctx, job.ID); err != nil {
			h.internalError(c, "failed to purge queue", err)
			return
		}
	}

	h.logger.Info().
		Int64("job_id", job.ID).
		Str("job_kind", string(kind)).
		Str("job_status", string(job.Status)).
		Int64("purged", purged).
		Msg("Job stop requested")

	c.JSON(http.StatusOK, StopResponse{
		Success:   true,
		Message:   string(kind) + " stopped",
		JobID:     job.ID,
		JobStatus: string(job.Status),
		Purged:    purged,
	})
}

// PurgeQueue deletes queue rows of a kind that belong to inactive jobs, so
// the same payloads can be queued again
// @Summary Purge finished queue rows
// @Tags jobs
// @Produce json
// @Param kind path string true "Job kind" Enums(import, update)
// @Success 200 {object} PurgeQueueResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/queue/{kind} [delete]
func (h *Handler) PurgeQueue(c *gin.Context) {
	kind, err := jobs.ParseKind(c.Param("kind"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	n, err := h.queue.PurgeInactive(c.Request.Context(), string(kind))
	if err != nil {
		h.internalError(c, "failed to purge queue", err)
		return
	}
	h.logger.Info().Str("job_kind", string(kind)).Int64("purged", n).Msg("Queue purged")
	c.JSON(http.StatusOK, PurgeQueueResponse{Success: true, Kind: string(kind), Purged: n})
}

// lookupJob reads job_id and loads the job, writing the error response when
// it is invalid, unknown or of another kind
func (h *Handler) lookupJob(c *gin.Context, kind jobs.Kind) (*jobs.Job, bool) {
	id, err := positiveID(c, "job_id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid job_id")
		return nil, false
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		respondError(c, http.StatusNotFound, "job not found")
		return nil, false
	case err != nil:
		h.internalError(c, "failed to load job", err)
		return nil, false
	case job.Kind != kind:
		respondError(c, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}
