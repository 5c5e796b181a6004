package handlers

import (
	"context"
	"net/http"
	"time"

	"hostelops/internal/services"
	"hostelops/pkg/queue"
	"hostelops/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemHandler exposes health and the sweep scheduler
type SystemHandler struct {
	db        *gorm.DB
	queue     *queue.RedisQueue
	scheduler *services.SweepScheduler
}

// NewSystemHandler takes a nil queue when redis is not configured
func NewSystemHandler(db *gorm.DB, q *queue.RedisQueue, scheduler *services.SweepScheduler) *SystemHandler {
	return &SystemHandler{db: db, queue: q, scheduler: scheduler}
}

func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health checks the database and, when present, redis
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = err.Error()
		healthy = false
	}

	if h.queue != nil {
		checks["redis"] = "ok"
		if err := h.queue.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

// SweepStatus lists the next run of each scheduled sweep
func (h *SystemHandler) SweepStatus(c *gin.Context) {
	response.Success(c, h.scheduler.NextRuns())
}

// QueueStatus reports the backlog of each job queue
func (h *SystemHandler) QueueStatus(c *gin.Context) {
	if h.queue == nil {
		response.Success(c, gin.H{"enabled": false})
		return
	}
	backlog := gin.H{}
	for _, kind := range []string{services.JobKindNotification, services.JobKindReceipt} {
		n, err := h.queue.Len(c.Request.Context(), kind)
		if err != nil {
			response.ServerError(c, "queue unavailable")
			return
		}
		backlog[kind] = n
	}
	response.Success(c, gin.H{"enabled": true, "backlog": backlog})
}

// JobStatus returns the status hash of one queued job
func (h *SystemHandler) JobStatus(c *gin.Context) {
	if h.queue == nil {
		response.NotFound(c, "job queue is not configured")
		return
	}
	status, err := h.queue.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.Success(c, status)
}

// RunSweeps runs every sweep once, synchronously
func (h *SystemHandler) RunSweeps(c *gin.Context) {
	results, err := h.scheduler.RunAll(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, results)
}
