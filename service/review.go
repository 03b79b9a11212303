package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// ErrNothingToResolve is returned by Resolve when the submission has no
// recorded partial completion.
var ErrNothingToResolve = errors.New("no partial completion recorded for submission")

// ErrUnpublished is returned by Acknowledge when the store draft already
// holds the decision. Only Resolve can bring the store back in step.
var ErrUnpublished = errors.New("decision is stored as an unpublished draft")

// Actions offered for a submission whose store update failed after the
// backend accepted the decision.
const (
	ActionResolve     = "resolve"
	ActionAcknowledge = "acknowledge"
)

// NotePrompt asks the operator for a rejection note. Returning ok=false
// means the operator dismissed the prompt. An empty note is valid.
type NotePrompt func(ctx context.Context, sub *model.Submission) (note string, ok bool)

// StaticNote answers the prompt with a fixed note
func StaticNote(note string) NotePrompt {
	return func(context.Context, *model.Submission) (string, bool) {
		return note, true
	}
}

// Outcome describes a committed review decision
type Outcome struct {
	SubmissionID string                `json:"submissionId"`
	Action       string                `json:"action"`
	Status       string                `json:"status"`
	ReviewNote   *string               `json:"reviewNote,omitempty"`
	Verification *VerificationResponse `json:"-"`
	DecidedAt    time.Time             `json:"decidedAt"`
}

// unresolved is a backend-confirmed decision the store does not reflect
type unresolved struct {
	outcome Outcome
	patch   model.SubmissionPatch
	err     error
	patched bool // the draft holds the decision, only publish failed
}

// Controller drives submissions from pending to approved or rejected.
// The verification backend must confirm a decision before the store is
// patched, and at most one decision per submission is in flight.
type Controller struct {
	store    DocumentStore
	verifier Verifier
	config   *config.ReviewConfig

	mu         sync.Mutex
	inFlight   map[string]struct{}
	unresolved map[string]*unresolved
}

func NewController(store DocumentStore, verifier Verifier, cfg *config.ReviewConfig) *Controller {
	if cfg == nil {
		cfg = &config.ReviewConfig{}
	}
	return &Controller{
		store:      store,
		verifier:   verifier,
		config:     cfg,
		inFlight:   make(map[string]struct{}),
		unresolved: make(map[string]*unresolved),
	}
}

// Review is an open review of a pending submission. It is the only way
// to approve or reject, so a terminal submission has no review to act on.
type Review struct {
	c        *Controller
	snapshot *model.Submission
}

// Submission returns the snapshot the review was opened with
func (r *Review) Submission() *model.Submission {
	return r.snapshot.Clone()
}

// Open reads the current submission and returns a review when it is
// still pending.
func (c *Controller) Open(ctx context.Context, id string) (*Review, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: submissionId", ErrInvalidSubmission)
	}
	if c.hasUnresolved(id) {
		return nil, fmt.Errorf("%w: %s awaits resolve or acknowledge", ErrPartialCompletion, id)
	}

	sub, err := c.current(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return &Review{c: c, snapshot: sub}, nil
}

// Approve confirms the submission with the backend, then marks it approved
func (r *Review) Approve(ctx context.Context) (*Outcome, error) {
	return r.c.decide(ctx, r.snapshot.ID, model.ActionApprove, nil)
}

// Reject asks prompt for a note, confirms the rejection with the backend,
// then marks the submission rejected with that note. A dismissed prompt
// aborts with ErrCancelled before anything is sent.
func (r *Review) Reject(ctx context.Context, prompt NotePrompt) (*Outcome, error) {
	if prompt == nil {
		return nil, ErrCancelled
	}
	note, ok := prompt(ctx, r.snapshot.Clone())
	if !ok {
		logger.Debug(logger.WithSubmission(ctx, r.snapshot.ID), "reject cancelled at note prompt")
		return nil, ErrCancelled
	}
	return r.c.decide(ctx, r.snapshot.ID, model.ActionReject, &note)
}

// ActionsFor lists what an operator can do with sub right now
func (c *Controller) ActionsFor(sub *model.Submission) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.unresolved[sub.ID]; ok {
		if rec.patched {
			return []string{ActionResolve}
		}
		return []string{ActionResolve, ActionAcknowledge}
	}
	if _, ok := c.inFlight[sub.ID]; ok {
		return []string{}
	}
	if sub.Draft && sub.IsTerminal() {
		return []string{ActionResolve}
	}
	return sub.Actions()
}

func (c *Controller) decide(ctx context.Context, id, action string, note *string) (*Outcome, error) {
	ctx = logger.WithSubmission(ctx, id)

	if !c.acquire(id) {
		return nil, ErrInFlight
	}
	defer c.release(id)

	if c.hasUnresolved(id) {
		return nil, fmt.Errorf("%w: %s awaits resolve or acknowledge", ErrPartialCompletion, id)
	}

	// The snapshot may be stale; re-check under the guard
	sub, err := c.current(ctx, id, true)
	if err != nil {
		return nil, err
	}

	req := VerificationRequest{
		Action:       action,
		SubmissionID: sub.ID,
		Address:      sub.Address,
		TaskID:       sub.TaskID,
	}
	if note != nil {
		req.ReviewNote = *note
	}

	// Once the backend is called the decision runs to completion
	ctx = context.WithoutCancel(ctx)

	logger.Info(ctx, "calling verification backend", "action", action)
	resp, err := c.verifier.Verify(ctx, req)
	if err != nil {
		var backendErr *BackendError
		if !errors.As(err, &backendErr) {
			err = &BackendError{Err: err}
		}
		logger.Warn(ctx, "verification backend rejected review", "action", action, "error", err)
		return nil, err
	}

	patch := model.SubmissionPatch{Status: targetStatus(action), ReviewNote: note}
	if c.config.CheckRevision {
		patch.IfRevision = sub.Revision
	}

	outcome := Outcome{
		SubmissionID: id,
		Action:       action,
		Status:       patch.Status,
		ReviewNote:   note,
		Verification: resp,
		DecidedAt:    time.Now(),
	}

	if patched, err := c.commit(ctx, id, patch); err != nil {
		c.recordUnresolved(id, &unresolved{outcome: outcome, patch: patch, err: err, patched: patched})
		logger.Error(ctx, "store update failed after backend accepted review", "action", action, "error", err)
		return nil, &PartialError{SubmissionID: id, Action: action, Err: err}
	}

	logger.Info(ctx, "review committed", "action", action, "status", patch.Status)
	return &outcome, nil
}

// Resolve retries only the store update of a partial completion. The
// backend is not called again.
func (c *Controller) Resolve(ctx context.Context, id string) (*Outcome, error) {
	ctx = logger.WithSubmission(ctx, id)

	if !c.acquire(id) {
		return nil, ErrInFlight
	}
	defer c.release(id)

	c.mu.Lock()
	rec, ok := c.unresolved[id]
	c.mu.Unlock()
	if !ok {
		var err error
		if rec, err = c.adoptDraft(ctx, id); err != nil {
			return nil, err
		}
	}

	// The backend decision is authoritative, so no revision check here
	patch := rec.patch
	patch.IfRevision = ""

	if patched, err := c.commit(context.WithoutCancel(ctx), id, patch); err != nil {
		c.mu.Lock()
		rec.err = err
		rec.patched = rec.patched || patched
		c.mu.Unlock()
		logger.Error(ctx, "resolve failed", "action", rec.outcome.Action, "error", err)
		return nil, &PartialError{SubmissionID: id, Action: rec.outcome.Action, Err: err}
	}

	c.mu.Lock()
	delete(c.unresolved, id)
	c.mu.Unlock()

	logger.Info(ctx, "partial completion resolved", "action", rec.outcome.Action)
	outcome := rec.outcome
	return &outcome, nil
}

// Acknowledge discards a recorded partial completion so the submission
// can be reviewed again from scratch. A record whose draft already holds
// the decision is kept and ErrUnpublished returned.
func (c *Controller) Acknowledge(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.unresolved[id]
	if !ok {
		return ErrNothingToResolve
	}
	if rec.patched {
		return fmt.Errorf("%w: resolve %s to publish it", ErrUnpublished, id)
	}
	delete(c.unresolved, id)
	return nil
}

// PartialCompletion describes an unresolved decision
type PartialCompletion struct {
	Outcome
	Error string `json:"error"`
}

// Unresolved lists recorded partial completions, oldest first
func (c *Controller) Unresolved() []PartialCompletion {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]PartialCompletion, 0, len(c.unresolved))
	for _, rec := range c.unresolved {
		result = append(result, PartialCompletion{Outcome: rec.outcome, Error: rec.err.Error()})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DecidedAt.Before(result[j].DecidedAt)
	})
	return result
}

// BatchResult is the result of one approval in ApproveAll
type BatchResult struct {
	Outcome *Outcome
	Err     error
}

// ApproveAll approves each id, running up to review.batch_concurrency
// approvals at once. Every id goes through Open and the in-flight guard.
func (c *Controller) ApproveAll(ctx context.Context, ids []string) map[string]BatchResult {
	results := make(map[string]BatchResult, len(ids))
	var mu sync.Mutex

	limit := c.config.BatchConcurrency
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			var res BatchResult
			review, err := c.Open(ctx, id)
			if err != nil {
				res.Err = err
			} else {
				res.Outcome, res.Err = review.Approve(ctx)
			}

			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

// current reads id and checks it is still reviewable. guarded is true
// when the caller holds the in-flight guard for id.
func (c *Controller) current(ctx context.Context, id string, guarded bool) (*model.Submission, error) {
	sub, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission: %w", err)
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	if err := validateForReview(sub); err != nil {
		return nil, err
	}
	if sub.Draft && sub.IsTerminal() {
		// Another decision in this process may be between patch and publish
		if !c.recordDraft(id, sub, guarded) {
			return nil, ErrInFlight
		}
		logger.Warn(logger.WithSubmission(ctx, id), "found unpublished decision in store", "status", sub.Status)
		return nil, fmt.Errorf("%w: %s has an unpublished %s decision", ErrPartialCompletion, id, sub.Status)
	}
	if sub.IsTerminal() {
		return nil, fmt.Errorf("%w: status is %s", ErrAlreadyTerminal, sub.Status)
	}
	return sub, nil
}

// adoptDraft records a terminal draft left behind by an earlier
// decision so that Resolve can publish it.
func (c *Controller) adoptDraft(ctx context.Context, id string) (*unresolved, error) {
	sub, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read submission: %w", err)
	}
	if sub == nil || !sub.Draft || !sub.IsTerminal() {
		return nil, ErrNothingToResolve
	}
	c.recordDraft(id, sub, true)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unresolved[id], nil
}

// recordDraft keeps an existing record for id. It refuses when the
// caller is unguarded and a decision for id is in flight.
func (c *Controller) recordDraft(id string, sub *model.Submission, guarded bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[id]; busy && !guarded {
		return false
	}
	if _, ok := c.unresolved[id]; !ok {
		c.unresolved[id] = draftRecord(sub)
	}
	return true
}

func draftRecord(sub *model.Submission) *unresolved {
	action := model.ActionApprove
	if sub.Status == model.StatusRejected {
		action = model.ActionReject
	}
	return &unresolved{
		outcome: Outcome{
			SubmissionID: sub.ID,
			Action:       action,
			Status:       sub.Status,
			ReviewNote:   sub.ReviewNote,
			DecidedAt:    time.Now(),
		},
		patch:   model.SubmissionPatch{Status: sub.Status, ReviewNote: sub.ReviewNote},
		err:     errors.New("decision was never published"),
		patched: true,
	}
}

// commit patches then publishes. patched reports whether the draft
// holds the decision when publish fails.
func (c *Controller) commit(ctx context.Context, id string, patch model.SubmissionPatch) (patched bool, err error) {
	if err := c.store.Patch(ctx, id, patch); err != nil {
		return false, fmt.Errorf("failed to patch submission: %w", err)
	}
	if err := c.store.Publish(ctx, id); err != nil {
		return true, fmt.Errorf("failed to publish submission: %w", err)
	}
	return false, nil
}

func (c *Controller) acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[id]; busy {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Controller) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
}

func (c *Controller) hasUnresolved(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.unresolved[id]
	return ok
}

func (c *Controller) recordUnresolved(id string, rec *unresolved) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unresolved[id] = rec
}

func validateForReview(sub *model.Submission) error {
	switch {
	case sub.ID == "":
		return fmt.Errorf("%w: submissionId", ErrInvalidSubmission)
	case sub.Address == "":
		return fmt.Errorf("%w: address", ErrInvalidSubmission)
	case sub.TaskID == "":
		return fmt.Errorf("%w: taskId", ErrInvalidSubmission)
	}
	return nil
}

func targetStatus(action string) string {
	if action == model.ActionReject {
		return model.StatusRejected
	}
	return model.StatusApproved
}
