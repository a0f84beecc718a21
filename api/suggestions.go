package api

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"mediaflow/job"
	"mediaflow/normalize"
	"mediaflow/progress"
	"mediaflow/remote"
	"mediaflow/suggest"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lithammer/shortuuid/v4"
)

// operationStoreSize bounds how many submit operations stay inspectable.
const operationStoreSize = 256

// operation is one submit-and-track session and its phase tracker.
type operation struct {
	ID         string
	JobID      string
	Suggestion string
	CreatedAt  time.Time
	Tracker    *progress.Tracker
}

type operationStore struct {
	cache *lru.Cache[string, *operation]
}

func newOperationStore(size int) *operationStore {
	cache, _ := lru.New[string, *operation](size)
	return &operationStore{cache: cache}
}

func newOperation() *operation {
	op := &operation{
		ID:        fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()),
		CreatedAt: time.Now(),
		Tracker:   progress.NewTracker(),
	}
	op.Tracker.Start(progress.DefaultPhases())
	return op
}

// add publishes op. Its plain fields must not change afterwards; the tracker may.
func (s *operationStore) add(op *operation) {
	s.cache.Add(op.ID, op)
}

func (s *operationStore) get(id string) (*operation, bool) {
	return s.cache.Get(id)
}

type AnalyzeRequest struct {
	Files []suggest.Input `json:"files" binding:"required,min=1,dive"`
}

type SubmitRequest struct {
	Files []suggest.Input `json:"files" binding:"required,min=1,dive"`
	// Uploads holds the server-side reference of each file, index-aligned with Files.
	// Missing entries are derived from the file name.
	Uploads []string `json:"uploads"`
}

// handleAnalyze runs the suggestion engine over the described files.
func (h *Handler) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analysis := h.engine.Analyze(c.Request.Context(), req.Files)
	primary, _ := analysis.Primary()
	c.JSON(http.StatusOK, gin.H{
		"artifacts":    analysis.Artifacts,
		"combinations": analysis.Combinations,
		"primary":      primary,
		"secondary":    analysis.Secondary(),
		"warnings":     analysis.Warnings,
	})
}

// handleSubmitPrimary analyzes the files, submits the top suggestion and
// tracks the resulting job through the default phases.
func (h *Handler) handleSubmitPrimary(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op := newOperation()
	op.Tracker.Advance("")
	respond := func(code int, body gin.H) {
		h.operations.add(op)
		body["operationId"] = op.ID
		c.JSON(code, body)
	}

	analysis := h.engine.Analyze(c.Request.Context(), req.Files)
	primary, ok := analysis.Primary()
	if !ok {
		op.Tracker.Fail("No suggestion for these files")
		respond(http.StatusUnprocessableEntity, gin.H{"error": "no suggestion for these files", "warnings": analysis.Warnings})
		return
	}
	op.Suggestion = primary.Title

	params, err := primary.ResolveParams(h.uploadRefs(req, primary))
	if err != nil {
		op.Tracker.Fail(err.Error())
		respond(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op.Tracker.Advance(fmt.Sprintf("Sending request to %s...", primary.Endpoint))
	resp, err := h.submitter.Submit(c.Request.Context(), primary.Endpoint, params)
	if err == nil && (resp == nil || !resp.Success) {
		reason := "submission rejected"
		if resp != nil && resp.Error != "" {
			reason = resp.Error
		}
		err = fmt.Errorf("submit to %s rejected: %s", primary.Endpoint, reason)
	}
	if err != nil {
		log.Printf("Operation %s: submitting %s failed: %v", op.ID, primary.Endpoint, err)
		op.Tracker.Fail(err.Error())
		respond(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// Asynchronous endpoint: hand the rest of the progress to the registry.
	// An inline result wins over polling.
	if resp.JobID != "" && !hasResult(resp) {
		op.JobID = resp.JobID
		op.Tracker.Advance("")
		h.operations.add(op)
		h.registry.Register(resp.JobID, &job.Job{Status: job.StatusPending, Title: primary.Title})
		if err := h.registry.Track(resp.JobID, op.Tracker); err != nil {
			log.Printf("Operation %s: tracking job %s failed: %v", op.ID, resp.JobID, err)
		}
		log.Printf("Operation %s submitted %s as job %s.", op.ID, primary.Endpoint, resp.JobID)
		respond(http.StatusAccepted, gin.H{"jobId": resp.JobID, "suggestion": primary})
		return
	}

	op.Tracker.Finish()
	blocks, err := h.normalizer.Normalize(resp.Result)
	if err != nil {
		respond(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if blocks == nil {
		blocks = []normalize.Block{}
	}
	body := gin.H{"suggestion": primary, "blocks": blocks}
	if resp.JobID != "" {
		op.JobID = resp.JobID
		body["jobId"] = resp.JobID
	}
	respond(http.StatusOK, body)
}

func hasResult(resp *remote.SubmitResponse) bool {
	v, err := normalize.Parse(resp.Result)
	return err == nil && v.Truthy()
}

// uploadRefs returns the upload reference of each of s's artifacts, matched
// back to the request's files by name and path.
func (h *Handler) uploadRefs(req SubmitRequest, s suggest.Suggestion) []string {
	used := make([]bool, len(req.Files))
	refs := make([]string, len(s.Artifacts))
	for i, a := range s.Artifacts {
		for k, f := range req.Files {
			if used[k] || f.Name != a.Name || f.Path != a.Path {
				continue
			}
			used[k] = true
			if k < len(req.Uploads) && req.Uploads[k] != "" {
				refs[i] = req.Uploads[k]
			} else {
				refs[i] = h.cfg.UploadURL(filepath.Base(f.Name))
			}
			break
		}
	}
	return refs
}

// handleGetOperation returns the phase summary of a submit operation.
func (h *Handler) handleGetOperation(c *gin.Context) {
	op, found := h.operations.get(c.Param("opId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
		return
	}

	summary := op.Tracker.Summary()
	now := time.Now()
	steps := make([]gin.H, len(summary.Steps))
	for i, s := range summary.Steps {
		steps[i] = gin.H{
			"title":     s.Title,
			"message":   s.Message,
			"status":    s.Status,
			"elapsedMs": s.Elapsed(now).Milliseconds(),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         op.ID,
		"jobId":      op.JobID,
		"suggestion": op.Suggestion,
		"createdAt":  op.CreatedAt,
		"percent":    summary.Percent,
		"failed":     summary.Failed,
		"steps":      steps,
	})
}
