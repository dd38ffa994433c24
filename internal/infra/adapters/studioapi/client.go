// File: internal/infra/adapters/studioapi/client.go
package studioapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.StudioAPI = (*Client)(nil)

// APIError is a non-2xx response. Detail carries the server's
// {"detail": "..."} text when present.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("studio api %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("studio api %d", e.StatusCode)
}

// Unwrap maps 404 onto domain.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return nil
}

// Client talks to the studio REST API with the caller's bearer credential.
type Client struct {
	base   string
	tokens adapter.TokenSource
	client *http.Client // bounded requests
	stream *http.Client // chat streams; bounded only by ctx
	log    *zerolog.Logger
}

func New(baseURL string, tokens adapter.TokenSource, timeout time.Duration, log *zerolog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("studio api base url empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid studio api url: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Client{
		base:   base,
		tokens: tokens,
		client: &http.Client{Timeout: timeout},
		stream: &http.Client{},
		log:    log,
	}, nil
}

type generateBody struct {
	RoomID             string   `json:"roomId,omitempty"`
	ProjectID          string   `json:"projectId"`
	Prompt             string   `json:"prompt,omitempty"`
	ReferenceImageURLs []string `json:"referenceImageUrls,omitempty"`
	Model              string   `json:"model,omitempty"`
}

// submitPath picks the endpoint for a job type. Zoning runs per room when a
// room is given and per project otherwise.
func submitPath(req adapter.GenerationRequest) (string, error) {
	switch req.Type {
	case model.JobTypeImage2D:
		return "/generate/2d", nil
	case model.JobTypeModel3D:
		return "/generate/3d", nil
	case model.JobTypeArtifact:
		return "/generate/artifact", nil
	case model.JobTypeZoningReport:
		if req.Workspace.IsProject() {
			return "/generate/project-zoning", nil
		}
		return "/generate/zoning", nil
	case model.JobTypeTechnicalInfoReport:
		return "/generate/project-technical-info", nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobType, req.Type)
}

func (c *Client) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	path, err := submitPath(req)
	if err != nil {
		return "", err
	}
	body := generateBody{ProjectID: req.Workspace.ProjectID}
	switch req.Type {
	case model.JobTypeImage2D:
		body.RoomID, body.Prompt, body.ReferenceImageURLs = req.Workspace.RoomID, req.Prompt, req.ReferenceImageURLs
	case model.JobTypeModel3D:
		body.RoomID, body.Model = req.Workspace.RoomID, req.Model
	case model.JobTypeArtifact, model.JobTypeZoningReport:
		body.RoomID = req.Workspace.RoomID
	}

	var out struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("studio api returned no job id")
	}
	c.log.Debug().Str("job_id", out.JobID).Str("type", string(req.Type)).Str("status", out.Status).Msg("job accepted")
	return out.JobID, nil
}

func (c *Client) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var out struct {
		Job *model.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodGet, "/generate/status/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	if out.Job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	return out.Job, nil
}

func (c *Client) StreamChat(ctx context.Context, req adapter.ChatRequest) (io.ReadCloser, error) {
	body := struct {
		RoomID    string   `json:"roomId"`
		ProjectID string   `json:"projectId"`
		Content   string   `json:"content"`
		ImageURLs []string `json:"imageUrls,omitempty"`
	}{req.RoomID, req.ProjectID, req.Content, req.ImageURLs}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/message", body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (c *Client) GetRoom(ctx context.Context, projectID, roomID string) (*model.Room, error) {
	var out struct {
		Room *model.Room `json:"room"`
	}
	path := "/projects/" + url.PathEscape(projectID) + "/rooms/" + url.PathEscape(roomID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Room == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound)
	}
	return out.Room, nil
}

func (c *Client) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var out struct {
		Project *model.Project `json:"project"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	if out.Project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, domain.ErrNotFound)
	}
	return out.Project, nil
}

// wireMessage tolerates the server's timestamps, which may lack a zone.
type wireMessage struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	ImageURLs []string   `json:"imageUrls"`
	CreatedAt string     `json:"createdAt"`
}

func (c *Client) ListMessages(ctx context.Context, projectID, roomID string) ([]model.ChatMessage, error) {
	var out struct {
		Messages []wireMessage `json:"messages"`
	}
	path := "/projects/" + url.PathEscape(projectID) + "/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]model.ChatMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, model.ChatMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			ImageURLs: m.ImageURLs,
			CreatedAt: parseTime(m.CreatedAt),
		})
	}
	return msgs, nil
}

// preflightPath mirrors submitPath for the report readiness checks.
func preflightPath(t model.JobType, ref model.WorkspaceRef) (string, error) {
	switch t {
	case model.JobTypeZoningReport:
		if ref.IsProject() {
			return "/generate/project-zoning/preflight", nil
		}
		return "/generate/zoning/preflight", nil
	case model.JobTypeTechnicalInfoReport:
		return "/generate/project-technical-info/preflight", nil
	}
	return "", fmt.Errorf("%w: %s has no preflight", domain.ErrInvalidArgument, t)
}

func (c *Client) Preflight(ctx context.Context, t model.JobType, ref model.WorkspaceRef) (*model.Preflight, error) {
	path, err := preflightPath(t, ref)
	if err != nil {
		return nil, err
	}
	body := generateBody{ProjectID: ref.ProjectID}
	if t == model.JobTypeZoningReport {
		body.RoomID = ref.RoomID
	}
	var out struct {
		Preflight *model.Preflight `json:"preflight"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if out.Preflight == nil {
		return nil, errors.New("studio api returned no preflight")
	}
	return out.Preflight, nil
}

func (c *Client) GetExport(ctx context.Context, projectID, roomID string) (*model.SceneExport, error) {
	var out model.SceneExport
	path := "/generate/3d/export/" + url.PathEscape(projectID) + "/" + url.PathEscape(roomID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, fmt.Errorf("scene export for room %s: %w", roomID, domain.ErrNotFound)
	}
	return &out, nil
}

// maxBundleSize bounds the zipped asset bundle held in memory.
const maxBundleSize = 512 << 20

// ExportBundle uses the stream client: the server assembles the zip before
// answering, which can outlast the regular request timeout.
func (c *Client) ExportBundle(ctx context.Context, projectID, roomID string) ([]byte, error) {
	path := "/generate/3d/export-bundle/" + url.PathEscape(projectID) + "/" + url.PathEscape(roomID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBundleSize+1))
	if err != nil {
		return nil, fmt.Errorf("read export bundle: %w", err)
	}
	if len(data) > maxBundleSize {
		return nil, fmt.Errorf("export bundle exceeds %d MiB", maxBundleSize>>20)
	}
	return data, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &APIError{StatusCode: resp.StatusCode}
	var out struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &out) == nil && len(out.Detail) > 0 {
		var s string
		if json.Unmarshal(out.Detail, &s) == nil {
			e.Detail = s
		} else {
			// validation errors arrive as a list of objects
			e.Detail = string(out.Detail)
		}
	} else {
		e.Detail = strings.TrimSpace(string(b))
	}
	return e
}
