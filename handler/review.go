package handler

import (
	"context"
	"net/http"

	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
)

const maxBatchSize = 100

// ReviewHandler exposes the review workflow to the operator console
type ReviewHandler struct {
	controller *service.Controller
}

func NewReviewHandler(controller *service.Controller) *ReviewHandler {
	return &ReviewHandler{controller: controller}
}

// RejectRequest carries the operator's note. A missing note means the
// operator dismissed the prompt; an empty string is a valid note.
type RejectRequest struct {
	Note *string `json:"note"`
}

type BatchRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// Approve handles POST /api/submissions/:id/approve
func (h *ReviewHandler) Approve(c *gin.Context) {
	ctx := logger.WithSubmission(c.Request.Context(), c.Param("id"))

	review, err := h.controller.Open(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	outcome, err := review.Approve(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Reject handles POST /api/submissions/:id/reject
func (h *ReviewHandler) Reject(c *gin.Context) {
	ctx := logger.WithSubmission(c.Request.Context(), c.Param("id"))

	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	review, err := h.controller.Open(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	outcome, err := review.Reject(ctx, func(context.Context, *model.Submission) (string, bool) {
		if req.Note == nil {
			return "", false
		}
		return *req.Note, true
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Resolve retries the store update of a partial completion
func (h *ReviewHandler) Resolve(c *gin.Context) {
	outcome, err := h.controller.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// Acknowledge discards a partial completion record
func (h *ReviewHandler) Acknowledge(c *gin.Context) {
	id := c.Param("id")
	if err := h.controller.Acknowledge(id); err != nil {
		writeError(c, err)
		return
	}
	logger.Info(logger.WithSubmission(c.Request.Context(), id), "partial completion acknowledged")
	c.JSON(http.StatusOK, gin.H{"submissionId": id, "acknowledged": true})
}

// Unresolved lists partial completions awaiting operator attention
func (h *ReviewHandler) Unresolved(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"partial_completions": h.controller.Unresolved()})
}

// ApproveBatch approves several submissions at once and reports each result
func (h *ReviewHandler) ApproveBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if len(req.IDs) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many submissions in one batch"})
		return
	}

	results := h.controller.ApproveAll(c.Request.Context(), req.IDs)

	response := make(map[string]gin.H, len(results))
	approved := 0
	for id, res := range results {
		if res.Err != nil {
			status, body := errorResponse(res.Err)
			body["status_code"] = status
			response[id] = body
			continue
		}
		approved++
		response[id] = gin.H{"outcome": res.Outcome}
	}

	c.JSON(http.StatusOK, gin.H{
		"approved": approved,
		"failed":   len(results) - approved,
		"results":  response,
	})
}
