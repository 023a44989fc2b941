package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/photovault/internal/api/middleware"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
	"github.com/timmy/photovault/internal/service"
)

// DuplicateLister returns the caller's duplicate clusters.
type DuplicateLister interface {
	GetDuplicates(ctx context.Context, auth service.Auth) ([]domain.DuplicateGroup, error)
}

// DuplicateHandler lists duplicate clusters and triggers detection runs.
type DuplicateHandler struct {
	duplicates DuplicateLister
	jobs       queue.Queue
}

func NewDuplicateHandler(duplicates DuplicateLister, jobs queue.Queue) *DuplicateHandler {
	return &DuplicateHandler{duplicates: duplicates, jobs: jobs}
}

// TriggerDetectionRequest selects between pending-only and full runs.
type TriggerDetectionRequest struct {
	Force bool `json:"force"`
}

// GetDuplicates handles GET /api/v1/duplicates.
func (h *DuplicateHandler) GetDuplicates(c *gin.Context) {
	groups, err := h.duplicates.GetDuplicates(c.Request.Context(), middleware.GetAuth(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if groups == nil {
		groups = []domain.DuplicateGroup{}
	}
	c.JSON(http.StatusOK, groups)
}

// TriggerDetection handles POST /api/v1/jobs/duplicates. The run itself
// happens on the workers; the response only acknowledges the queued job.
func (h *DuplicateHandler) TriggerDetection(c *gin.Context) {
	ctx := c.Request.Context()

	var req TriggerDetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	job, err := domain.NewJob(domain.JobAssetDetectDuplicatesQueueAll, domain.ForceJob{Force: req.Force})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.jobs.Queue(ctx, job); err != nil {
		respondError(c, err)
		return
	}

	logger.CtxInfo(ctx, "Queued duplicate detection: force=%v, client_ip=%s", req.Force, c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"message": "Duplicate detection queued", "force": req.Force})
}
