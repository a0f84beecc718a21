package api

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"mediaflow/config"
	"mediaflow/job"
	"mediaflow/normalize"
	"mediaflow/remote"
	"mediaflow/suggest"

	"github.com/gin-gonic/gin"
)

// Submitter sends a processing request to the job service.
type Submitter interface {
	Submit(ctx context.Context, endpoint string, params map[string]any) (*remote.SubmitResponse, error)
}

type Handler struct {
	cfg        *config.Config
	registry   *job.Registry
	engine     *suggest.Engine
	submitter  Submitter
	normalizer *normalize.Normalizer
	operations *operationStore
}

func NewHandler(cfg *config.Config, registry *job.Registry, engine *suggest.Engine, submitter Submitter) *Handler {
	return &Handler{
		cfg:        cfg,
		registry:   registry,
		engine:     engine,
		submitter:  submitter,
		normalizer: normalize.New(cfg.UploadURL),
		operations: newOperationStore(operationStoreSize),
	}
}

type RegisterRequest struct {
	ID             string   `json:"id" binding:"required"`
	Title          string   `json:"title"`
	RequestSummary string   `json:"request_summary"`
	Snapshot       *job.Job `json:"snapshot"`
}

// handleListJobs lists every tracked job, newest first.
func (h *Handler) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// handleListActiveJobs lists pending and processing jobs with their count.
func (h *Handler) handleListActiveJobs(c *gin.Context) {
	jobs := h.registry.ListActive()
	c.JSON(http.StatusOK, gin.H{"count": len(jobs), "jobs": jobs})
}

// handleRegisterJob starts tracking a job created elsewhere.
func (h *Handler) handleRegisterJob(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap := req.Snapshot
	if snap == nil && (req.Title != "" || req.RequestSummary != "") {
		snap = &job.Job{Status: job.StatusPending}
	}
	if snap != nil {
		if req.Title != "" {
			snap.Title = req.Title
		}
		if req.RequestSummary != "" {
			snap.RequestSummary = req.RequestSummary
		}
	}

	h.registry.Register(req.ID, snap)
	j, _ := h.registry.Get(req.ID)
	c.JSON(http.StatusAccepted, j)
}

// handleGetJob returns the tracked snapshot of one job.
func (h *Handler) handleGetJob(c *gin.Context) {
	j, found := h.registry.Get(c.Param("jobId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, j)
}

// handleCancelJob stops tracking a job. The server keeps running it.
func (h *Handler) handleCancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if err := h.registry.Cancel(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job is no longer tracked"})
}

// handleGetJobResult returns the display blocks of a finished job.
func (h *Handler) handleGetJobResult(c *gin.Context) {
	jobID := c.Param("jobId")
	blocks, err := h.registry.Result(jobID)

	var failed *job.FailedError
	var parseErr *normalize.ParseError
	switch {
	case err == nil:
		if blocks == nil {
			blocks = []normalize.Block{}
		}
		c.JSON(http.StatusOK, gin.H{"id": jobID, "blocks": blocks})
	case errors.Is(err, job.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, job.ErrJobPending):
		j, _ := h.registry.Get(jobID)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": j.Status, "progress": j.Progress})
	case errors.As(err, &failed):
		c.JSON(http.StatusOK, gin.H{"id": jobID, "failed": true, "error": failed.Message})
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": parseErr.Error()})
	default:
		log.Printf("Reading result of job %s failed: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleNormalize turns an arbitrary result payload into display blocks.
func (h *Handler) handleNormalize(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	blocks, err := h.normalizer.Normalize(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if blocks == nil {
		blocks = []normalize.Block{}
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}
