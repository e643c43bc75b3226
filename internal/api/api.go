// Package api exposes the job catalog over HTTP. The handlers are a thin
// shell around the catalog service and audit store; all semantics live
// below them.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobkeeper/internal/shared"
)

// historyDepth caps how many executions a history response carries.
const historyDepth = 5

// Handler wires the HTTP surface to the catalog and audit layers.
type Handler struct {
	jobs    JobService
	history HistoryReader
	log     *slog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(jobs JobService, history HistoryReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{jobs: jobs, history: history, log: log}
}

// Register mounts every route on the router.
func (h *Handler) Register(r gin.IRouter) {
	jobs := r.Group("/jobs")
	jobs.POST("", h.createJob)
	jobs.GET("", h.listJobs)
	jobs.GET("/:id", h.getJob)
	jobs.PUT("/:id", h.updateJob)
	jobs.PATCH("/:id/enabled", h.setJobEnabled)
	jobs.DELETE("/:id", h.deleteJob)
	jobs.POST("/:id/run", h.runJobNow)
	jobs.GET("/:id/history", h.jobHistory)

	r.GET("/status", h.queueStatus)
	r.GET("/healthz", h.healthz)
}

// NewRouter builds a production router with recovery and request logging.
func NewRouter(h *Handler, log *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	h.Register(r)
	return r
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
		)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError translates error kinds into HTTP statuses. Internal detail
// stays in the log; the client sees only the sanitized message.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch shared.KindOf(err) {
	case shared.KindValidation:
		status = http.StatusBadRequest
	case shared.KindNotFound:
		status = http.StatusNotFound
	case shared.KindConflict:
		status = http.StatusConflict
	case shared.KindTimeout:
		status = http.StatusGatewayTimeout
	case shared.KindDependencyFailure:
		status = http.StatusBadGateway
	case shared.KindCanceled:
		status = 499 // client closed request
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

var errBadID = shared.Wrapf(shared.ErrValidation, "id must be a UUID")
