package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Anylayerorg/landing-sub001/config"
	"github.com/Anylayerorg/landing-sub001/model"
)

const (
	cmsDraftPrefix     = "drafts."
	cmsSubmissionType  = "airdropSubmission"
	cmsSubscriberType  = "subscriber"
	cmsContactType     = "contactMessage"
	cmsSubmissionQuery = `*[_type == "airdropSubmission" && !(_id in path("drafts.**")) && ($status == "" || status == $status)] | order(submittedAt desc)`
)

// CMSStore talks to a headless CMS over its HTTP document API.
// Drafts live under the "drafts." id prefix; publishing replaces the
// published document with the draft and deletes the draft in one
// transaction.
type CMSStore struct {
	config     *config.CMSConfig
	httpClient *http.Client
}

// cmsSubmission is the CMS representation of a submission
type cmsSubmission struct {
	ID            string    `json:"_id"`
	Type          string    `json:"_type"`
	Rev           string    `json:"_rev,omitempty"`
	SubmissionID  string    `json:"submissionId"`
	Address       string    `json:"address"`
	TaskID        string    `json:"taskId"`
	TaskTitle     string    `json:"taskTitle"`
	ProofLink     string    `json:"proofLink,omitempty"`
	ScreenshotURL string    `json:"screenshotUrl,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
	Status        string    `json:"status"`
	ReviewNote    *string   `json:"reviewNote,omitempty"`
}

type cmsMutation map[string]any

type cmsMutateRequest struct {
	Mutations []cmsMutation `json:"mutations"`
}

type cmsMutateResponse struct {
	TransactionID string `json:"transactionId"`
	Results       []struct {
		ID        string `json:"id"`
		Operation string `json:"operation"`
	} `json:"results"`
}

func NewCMSStore(cfg *config.CMSConfig) *CMSStore {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CMSStore{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func toCMSSubmission(s *model.Submission) *cmsSubmission {
	return &cmsSubmission{
		ID:            s.ID,
		Type:          cmsSubmissionType,
		SubmissionID:  s.ID,
		Address:       s.Address,
		TaskID:        s.TaskID,
		TaskTitle:     s.TaskTitle,
		ProofLink:     s.ProofLink,
		ScreenshotURL: s.ScreenshotURL,
		SubmittedAt:   s.SubmittedAt,
		Status:        s.Status,
		ReviewNote:    s.ReviewNote,
	}
}

func (d *cmsSubmission) toModel() *model.Submission {
	id := d.SubmissionID
	if id == "" {
		id = strings.TrimPrefix(d.ID, cmsDraftPrefix)
	}
	return &model.Submission{
		ID:            id,
		Address:       d.Address,
		TaskID:        d.TaskID,
		TaskTitle:     d.TaskTitle,
		ProofLink:     d.ProofLink,
		ScreenshotURL: d.ScreenshotURL,
		SubmittedAt:   d.SubmittedAt,
		Status:        d.Status,
		ReviewNote:    d.ReviewNote,
		Revision:      d.Rev,
		Draft:         strings.HasPrefix(d.ID, cmsDraftPrefix),
	}
}

// documents fetches the draft and published versions of id
func (s *CMSStore) documents(ctx context.Context, id string) (draft, published *cmsSubmission, err error) {
	endpoint := fmt.Sprintf("%s/data/doc/%s/%s,%s", s.config.APIURL, s.config.Dataset,
		url.PathEscape(cmsDraftPrefix+id), url.PathEscape(id))

	var resp struct {
		Documents []cmsSubmission `json:"documents"`
	}
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, nil, err
	}

	for i := range resp.Documents {
		doc := &resp.Documents[i]
		if strings.HasPrefix(doc.ID, cmsDraftPrefix) {
			draft = doc
		} else {
			published = doc
		}
	}
	return draft, published, nil
}

func (s *CMSStore) Get(ctx context.Context, id string) (*model.Submission, error) {
	draft, published, err := s.documents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submission: %w", err)
	}
	if draft != nil {
		return draft.toModel(), nil
	}
	if published != nil {
		return published.toModel(), nil
	}
	return nil, nil
}

// Patch sets the review fields on the draft, creating the draft from the
// published document when needed.
func (s *CMSStore) Patch(ctx context.Context, id string, patch model.SubmissionPatch) error {
	draft, published, err := s.documents(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch submission: %w", err)
	}

	current := draft
	if current == nil {
		current = published
	}
	if current == nil {
		return ErrNotFound
	}
	if patch.IfRevision != "" && patch.IfRevision != current.Rev {
		return fmt.Errorf("%w: have %s, want %s", ErrRevisionConflict, current.Rev, patch.IfRevision)
	}

	draftID := cmsDraftPrefix + id
	patchBody := map[string]any{
		"id":  draftID,
		"set": patch.Fields(),
	}

	var mutations []cmsMutation
	if draft == nil {
		seed := *published
		seed.ID = draftID
		seed.Rev = ""
		mutations = append(mutations, cmsMutation{"createIfNotExists": seed})
	} else if patch.IfRevision != "" {
		patchBody["ifRevisionID"] = draft.Rev
	}
	mutations = append(mutations, cmsMutation{"patch": patchBody})

	if err := s.mutate(ctx, mutations); err != nil {
		return fmt.Errorf("failed to patch submission: %w", err)
	}
	return nil
}

func (s *CMSStore) Publish(ctx context.Context, id string) error {
	draft, published, err := s.documents(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch submission: %w", err)
	}
	if draft == nil {
		if published != nil {
			return nil // nothing to publish
		}
		return ErrNotFound
	}

	doc := *draft
	doc.ID = id
	doc.Rev = ""

	mutations := []cmsMutation{
		{"createOrReplace": doc},
		{"delete": map[string]any{"id": cmsDraftPrefix + id}},
	}
	if err := s.mutate(ctx, mutations); err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}
	return nil
}

func (s *CMSStore) Create(ctx context.Context, sub *model.Submission) error {
	if err := s.mutate(ctx, []cmsMutation{{"create": toCMSSubmission(sub)}}); err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *CMSStore) List(ctx context.Context, status string) ([]*model.Submission, error) {
	statusParam, _ := json.Marshal(status)
	q := url.Values{}
	q.Set("query", cmsSubmissionQuery)
	q.Set("$status", string(statusParam))
	endpoint := fmt.Sprintf("%s/data/query/%s?%s", s.config.APIURL, s.config.Dataset, q.Encode())

	var resp struct {
		Result []cmsSubmission `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	result := make([]*model.Submission, 0, len(resp.Result))
	for i := range resp.Result {
		result = append(result, resp.Result[i].toModel())
	}
	return result, nil
}

func (s *CMSStore) AddSubscriber(ctx context.Context, sub *model.Subscriber) error {
	doc := map[string]any{
		"_id":       "subscriber." + sub.ID,
		"_type":     cmsSubscriberType,
		"email":     sub.Email,
		"source":    sub.Source,
		"createdAt": sub.CreatedAt,
	}
	if err := s.mutate(ctx, []cmsMutation{{"createOrReplace": doc}}); err != nil {
		return fmt.Errorf("failed to save subscriber: %w", err)
	}
	return nil
}

func (s *CMSStore) AddContact(ctx context.Context, msg *model.ContactMessage) error {
	doc := map[string]any{
		"_id":       "contact." + msg.ID,
		"_type":     cmsContactType,
		"name":      msg.Name,
		"email":     msg.Email,
		"subject":   msg.Subject,
		"message":   msg.Message,
		"createdAt": msg.CreatedAt,
	}
	if err := s.mutate(ctx, []cmsMutation{{"create": doc}}); err != nil {
		return fmt.Errorf("failed to save contact message: %w", err)
	}
	return nil
}

func (s *CMSStore) mutate(ctx context.Context, mutations []cmsMutation) error {
	endpoint := fmt.Sprintf("%s/data/mutate/%s", s.config.APIURL, s.config.Dataset)
	var resp cmsMutateResponse
	return s.do(ctx, http.MethodPost, endpoint, cmsMutateRequest{Mutations: mutations}, &resp)
}

func (s *CMSStore) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrRevisionConflict, string(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("cms returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w, body: %s", err, string(respBody))
		}
	}
	return nil
}

var (
	_ DocumentStore = (*CMSStore)(nil)
	_ InboxStore    = (*CMSStore)(nil)
)
