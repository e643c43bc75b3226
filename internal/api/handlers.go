package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jobkeeper/internal/audit"
	"jobkeeper/internal/broker"
	"jobkeeper/internal/catalog"
)

// JobService is the slice of the catalog service the HTTP layer needs.
type JobService interface {
	Create(ctx context.Context, p catalog.JobParams) (*catalog.Job, error)
	Update(ctx context.Context, id uuid.UUID, p catalog.JobParams) (*catalog.Job, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*catalog.Job, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RunNow(ctx context.Context, id uuid.UUID) (string, error)
	Get(ctx context.Context, id uuid.UUID) (*catalog.Job, error)
	List(ctx context.Context) ([]*catalog.Job, error)
	Status(ctx context.Context) (map[string]catalog.TypeStatus, error)
}

// HistoryReader reads execution history for one job.
type HistoryReader interface {
	History(ctx context.Context, jobID uuid.UUID, limit int) ([]audit.Execution, error)
}

type jobRequest struct {
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	CronPattern   string          `json:"cronPattern"`
	Payload       json.RawMessage `json:"payload"`
	Enabled       bool            `json:"enabled"`
	RetryAttempts int             `json:"retryAttempts"`
}

func (r jobRequest) params() catalog.JobParams {
	return catalog.JobParams{
		Name:          r.Name,
		Type:          r.Type,
		CronPattern:   r.CronPattern,
		Payload:       r.Payload,
		Enabled:       r.Enabled,
		RetryAttempts: r.RetryAttempts,
	}
}

type jobResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Type          string          `json:"type"`
	CronPattern   string          `json:"cronPattern"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Enabled       bool            `json:"enabled"`
	RetryAttempts int             `json:"retryAttempts"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func toJobResponse(j *catalog.Job) jobResponse {
	return jobResponse{
		ID:            j.ID,
		Name:          j.Name,
		Type:          j.Type,
		CronPattern:   j.CronPattern,
		Payload:       j.Payload,
		Enabled:       j.Enabled,
		RetryAttempts: j.RetryAttempts,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

type triggerResponse struct {
	Key            string    `json:"key"`
	Pattern        string    `json:"pattern"`
	JobName        string    `json:"jobName"`
	IterationCount int       `json:"iterationCount"`
	NextFire       time.Time `json:"nextFire"`
}

type typeStatusResponse struct {
	Triggers []triggerResponse       `json:"triggers"`
	Counts   map[broker.Status]int64 `json:"counts"`
}

type historyEntryResponse struct {
	Status       broker.Status   `json:"status"`
	Data         json.RawMessage `json:"data,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type executionResponse struct {
	ExecutionID string                 `json:"executionId"`
	Entries     []historyEntryResponse `json:"entries"`
}

func (h *Handler) createJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	job, err := h.jobs.Create(c.Request.Context(), req.params())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toJobResponse(job))
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.jobs.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errBadID)
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

func (h *Handler) updateJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errBadID)
		return
	}
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	job, err := h.jobs.Update(c.Request.Context(), id, req.params())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

func (h *Handler) setJobEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errBadID)
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry an enabled flag"})
		return
	}

	job, err := h.jobs.SetEnabled(c.Request.Context(), id, *req.Enabled)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}

func (h *Handler) deleteJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errBadID)
		return
	}

	if err := h.jobs.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) runJobNow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errBadID)
		return
	}

	execID, err := h.jobs.RunNow(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"executionId": execID})
}

func (h *Handler) jobHistory(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.respondError(c, errBadID)
		return
	}
	// 404 for unknown jobs instead of an empty history
	if _, err := h.jobs.Get(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	executions, err := h.history.History(c.Request.Context(), id, historyDepth)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]executionResponse, 0, len(executions))
	for _, exec := range executions {
		entries := make([]historyEntryResponse, 0, len(exec.Entries))
		for _, e := range exec.Entries {
			entries = append(entries, historyEntryResponse{
				Status:       e.Status,
				Data:         e.Data,
				Result:       e.Result,
				FailedReason: e.FailedReason,
				CreatedAt:    e.CreatedAt,
			})
		}
		out = append(out, executionResponse{ExecutionID: exec.ExecutionID, Entries: entries})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) queueStatus(c *gin.Context) {
	status, err := h.jobs.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make(map[string]typeStatusResponse, len(status))
	for jobType, ts := range status {
		triggers := make([]triggerResponse, 0, len(ts.Triggers))
		for _, t := range ts.Triggers {
			triggers = append(triggers, triggerResponse{
				Key:            t.Key,
				Pattern:        t.Pattern,
				JobName:        t.JobName,
				IterationCount: t.IterationCount,
				NextFire:       t.NextFire,
			})
		}
		out[jobType] = typeStatusResponse{Triggers: triggers, Counts: ts.Counts}
	}
	c.JSON(http.StatusOK, out)
}
