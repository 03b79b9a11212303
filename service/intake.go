package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/google/uuid"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// SubmissionInput is what a participant sends when claiming a task
type SubmissionInput struct {
	Address   string `json:"address" form:"address"`
	TaskID    string `json:"taskId" form:"taskId"`
	TaskTitle string `json:"taskTitle" form:"taskTitle"`
	ProofLink string `json:"proofLink" form:"proofLink"`
}

// Screenshot is an optional uploaded proof image
type Screenshot struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// SubmissionService accepts new submissions and reads them back for the
// review console.
type SubmissionService struct {
	store   DocumentStore
	storage ScreenshotStorage // nil when evidence storage is disabled
}

func NewSubmissionService(store DocumentStore, storage ScreenshotStorage) *SubmissionService {
	return &SubmissionService{store: store, storage: storage}
}

// Validate normalises in and checks the required fields
func (in *SubmissionInput) Validate() error {
	in.Address = strings.TrimSpace(in.Address)
	in.TaskID = strings.TrimSpace(in.TaskID)
	in.TaskTitle = strings.TrimSpace(in.TaskTitle)
	in.ProofLink = strings.TrimSpace(in.ProofLink)

	switch {
	case in.Address == "":
		return fmt.Errorf("%w: address", ErrInvalidSubmission)
	case !addressPattern.MatchString(in.Address):
		return fmt.Errorf("%w: address must be 0x followed by 40 hex digits", ErrInvalidSubmission)
	case in.TaskID == "":
		return fmt.Errorf("%w: taskId", ErrInvalidSubmission)
	case in.TaskTitle == "":
		return fmt.Errorf("%w: taskTitle", ErrInvalidSubmission)
	}

	if in.ProofLink != "" {
		u, err := url.Parse(in.ProofLink)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: proofLink must be an http(s) URL", ErrInvalidSubmission)
		}
	}
	return nil
}

// Submit stores a new pending submission
func (s *SubmissionService) Submit(ctx context.Context, in SubmissionInput, shot *Screenshot) (*model.Submission, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:          uuid.New().String(),
		Address:     in.Address,
		TaskID:      in.TaskID,
		TaskTitle:   in.TaskTitle,
		ProofLink:   in.ProofLink,
		SubmittedAt: time.Now().UTC(),
		Status:      model.StatusPending,
	}
	ctx = logger.WithSubmission(ctx, sub.ID)

	var objectName string
	if shot != nil && s.storage != nil {
		screenshotURL, err := s.storage.StoreScreenshot(ctx, sub.ID, shot.Filename, shot.Reader, shot.Size, shot.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to store screenshot: %w", err)
		}
		sub.ScreenshotURL = screenshotURL
		objectName = ScreenshotObjectName(sub.ID, shot.Filename)
	}

	if err := s.store.Create(ctx, sub); err != nil {
		if objectName != "" {
			if delErr := s.storage.DeleteFile(ctx, objectName); delErr != nil {
				logger.Warn(ctx, "failed to remove orphaned screenshot", "object", objectName, "error", delErr)
			}
		}
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	logger.Info(ctx, "submission received", "task_id", sub.TaskID, "address", sub.Address)
	return sub, nil
}

// Get returns the current snapshot or ErrNotFound
func (s *SubmissionService) Get(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission: %w", err)
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

// List returns published submissions, newest first
func (s *SubmissionService) List(ctx context.Context, status string) ([]*model.Submission, error) {
	switch status {
	case "", model.StatusPending, model.StatusApproved, model.StatusRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.List(ctx, status)
}
