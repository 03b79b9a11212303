package model

import (
	"time"
)

// Submission is an airdrop task attestation awaiting operator review
type Submission struct {
	ID            string    `json:"submissionId"`
	Address       string    `json:"address"`
	TaskID        string    `json:"taskId"`
	TaskTitle     string    `json:"taskTitle"`
	ProofLink     string    `json:"proofLink,omitempty"`
	ScreenshotURL string    `json:"screenshotUrl,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
	Status        string    `json:"status"` // pending, approved, rejected
	ReviewNote    *string   `json:"reviewNote,omitempty"`
	Revision      string    `json:"_rev,omitempty"`
	Draft         bool      `json:"-"`
}

// Submission status constants
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Review actions
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// IsTerminal reports whether no further transition is allowed
func (s *Submission) IsTerminal() bool {
	return s.Status != StatusPending
}

// Actions lists the review actions an operator may take on the submission
func (s *Submission) Actions() []string {
	if s.IsTerminal() {
		return []string{}
	}
	return []string{ActionApprove, ActionReject}
}

// Clone returns a copy that shares no pointers with s
func (s *Submission) Clone() *Submission {
	c := *s
	if s.ReviewNote != nil {
		note := *s.ReviewNote
		c.ReviewNote = &note
	}
	return &c
}

// SubmissionPatch is the set of mutable fields written on a review decision.
// IfRevision, when set, must match the stored revision.
type SubmissionPatch struct {
	Status     string
	ReviewNote *string
	IfRevision string
}

// Fields returns the patch as a CMS-style set map
func (p SubmissionPatch) Fields() map[string]any {
	fields := map[string]any{"status": p.Status}
	if p.ReviewNote != nil {
		fields["reviewNote"] = *p.ReviewNote
	}
	return fields
}

// Apply writes the patch onto s
func (p SubmissionPatch) Apply(s *Submission) {
	s.Status = p.Status
	if p.ReviewNote != nil {
		note := *p.ReviewNote
		s.ReviewNote = &note
	}
}
