package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
)

const maxScreenshotSize = 5 << 20

var screenshotTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

type SubmissionHandler struct {
	submissions *service.SubmissionService
	controller  *service.Controller
}

func NewSubmissionHandler(submissions *service.SubmissionService, controller *service.Controller) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, controller: controller}
}

// submissionView is a submission plus the actions an operator may take now
type submissionView struct {
	*model.Submission
	Actions []string `json:"actions"`
}

// Create handles public intake, as JSON or multipart with a screenshot
func (h *SubmissionHandler) Create(c *gin.Context) {
	var in service.SubmissionInput
	var shot *service.Screenshot

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		file, header, err := c.Request.FormFile("screenshot")
		switch {
		case err == http.ErrMissingFile:
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid screenshot upload"})
			return
		default:
			defer file.Close()

			if header.Size > maxScreenshotSize {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Screenshot exceeds 5MB"})
				return
			}

			ext := strings.ToLower(filepath.Ext(header.Filename))
			expected, ok := screenshotTypes[ext]
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Only PNG, JPEG and WebP screenshots are allowed"})
				return
			}

			// Sniff the content rather than trusting the client header
			buffer := make([]byte, 512)
			n, err := file.Read(buffer)
			if err != nil && err != io.EOF {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read screenshot"})
				return
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read screenshot"})
				return
			}
			detected := http.DetectContentType(buffer[:n])
			if !strings.HasPrefix(detected, "image/") && detected != "application/octet-stream" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid screenshot content"})
				return
			}

			shot = &service.Screenshot{
				Filename:    header.Filename,
				ContentType: expected,
				Size:        header.Size,
				Reader:      file,
			}
		}
	} else if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sub, err := h.submissions.Submit(c.Request.Context(), in, shot)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"submissionId": sub.ID,
		"status":       sub.Status,
		"submittedAt":  sub.SubmittedAt,
	})
}

// List returns published submissions, optionally filtered by ?status=
func (h *SubmissionHandler) List(c *gin.Context) {
	subs, err := h.submissions.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		writeError(c, err)
		return
	}

	result := make([]submissionView, len(subs))
	for i, sub := range subs {
		result[i] = submissionView{Submission: sub, Actions: h.controller.ActionsFor(sub)}
	}

	c.JSON(http.StatusOK, gin.H{"submissions": result})
}

// Get returns the current snapshot of one submission
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, submissionView{Submission: sub, Actions: h.controller.ActionsFor(sub)})
}
