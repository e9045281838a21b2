package teamplansdk

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
)

// Client is a minimal Teamplan HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

type Team struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Capacity float64 `json:"capacity"`
}

// Project mirrors the API project; Effort and Value are nil when unset.
type Project struct {
	ID              string   `json:"id"`
	TeamID          string   `json:"teamId"`
	Title           string   `json:"title"`
	Effort          *float64 `json:"effort"`
	Value           *float64 `json:"value"`
	SourceProjectID *string  `json:"sourceProjectId,omitempty"`
	IsLinkedCopy    *bool    `json:"isLinkedCopy,omitempty"`
}

type Dependency struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

type TeamSummary struct {
	Allocated float64 `json:"allocated"`
	Value     float64 `json:"value"`
}

// Workspace is the import/export exchange file.
type Workspace struct {
	Teams        []Team             `json:"teams"`
	Projects     map[string]Project `json:"projects"`
	Dependencies []Dependency       `json:"dependencies"`
}

type ImportStats struct {
	Teams               int `json:"teams"`
	Projects            int `json:"projects"`
	Dependencies        int `json:"dependencies"`
	SkippedDependencies int `json:"skippedDependencies"`
}

// PrioritizeRequest is a self-contained prioritization; nothing is stored.
type PrioritizeRequest struct {
	Mode         string       `json:"mode,omitempty"`
	Teams        []Team       `json:"teams"`
	Projects     []Project    `json:"projects"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

type Result struct {
	Mode               string                 `json:"mode"`
	Strategy           string                 `json:"strategy"`
	Fallback           bool                   `json:"fallback"`
	TotalValue         float64                `json:"totalValue"`
	DurationMS         int64                  `json:"durationMs"`
	PlanID             string                 `json:"planId"`
	SelectedProjects   []Project              `json:"selectedProjects"`
	UnselectedProjects []Project              `json:"unselectedProjects"`
	TeamSummaries      map[string]TeamSummary `json:"teamSummaries"`
}

type Plan struct {
	ID         string  `json:"id"`
	Mode       string  `json:"mode"`
	TotalValue float64 `json:"totalValue"`
	Fallback   bool    `json:"fallback"`
	CreatedBy  string  `json:"createdBy"`
	CreatedAt  string  `json:"createdAt"`
	Result     struct {
		SelectedProjects   []Project              `json:"selectedProjects"`
		UnselectedProjects []Project              `json:"unselectedProjects"`
		TeamSummaries      map[string]TeamSummary `json:"teamSummaries"`
	} `json:"result"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Prioritize runs a stateless prioritization on the server.
func (c *Client) Prioritize(ctx context.Context, req PrioritizeRequest) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodPost, "v0/prioritize", req, &resp)
	return resp, err
}

// WorkspacePrioritize prioritizes the server's stored workspace. An empty mode
// uses the server default; save stores the run as a plan.
func (c *Client) WorkspacePrioritize(ctx context.Context, mode string, save bool) (Result, error) {
	body := map[string]any{"save": save}
	if mode != "" {
		body["mode"] = mode
	}
	var resp Result
	err := c.do(ctx, http.MethodPost, "v0/workspace/prioritize", body, &resp)
	return resp, err
}

// Export downloads the whole workspace.
func (c *Client) Export(ctx context.Context) (Workspace, error) {
	var resp Workspace
	err := c.do(ctx, http.MethodGet, "v0/export", nil, &resp)
	return resp, err
}

// Import uploads an exchange file. With replace the server workspace is
// emptied first.
func (c *Client) Import(ctx context.Context, file Workspace, replace bool) (ImportStats, error) {
	body := map[string]any{"file": file, "replace": replace}
	var resp ImportStats
	err := c.do(ctx, http.MethodPost, "v0/import", body, &resp)
	return resp, err
}

// CreateTeam creates a team.
func (c *Client) CreateTeam(ctx context.Context, t Team) (Team, error) {
	var resp Team
	err := c.do(ctx, http.MethodPost, "v0/teams", t, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, p Project) (Project, error) {
	body := map[string]any{"teamId": p.TeamID, "title": p.Title}
	if p.ID != "" {
		body["id"] = p.ID
	}
	if p.Effort != nil {
		body["effort"] = *p.Effort
	}
	if p.Value != nil {
		body["value"] = *p.Value
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// LinkDependency makes target depend on source.
func (c *Client) LinkDependency(ctx context.Context, sourceID, targetID string) error {
	return c.do(ctx, http.MethodPost, "v0/dependencies", Dependency{SourceID: sourceID, TargetID: targetID}, nil)
}

// WouldCreateCycle asks whether linking source -> target would close a cycle.
func (c *Client) WouldCreateCycle(ctx context.Context, sourceID, targetID string) (bool, error) {
	var resp struct {
		WouldCreateCycle bool `json:"wouldCreateCycle"`
	}
	err := c.do(ctx, http.MethodPost, "v0/dependencies/check", Dependency{SourceID: sourceID, TargetID: targetID}, &resp)
	return resp.WouldCreateCycle, err
}

// GetPlan fetches a saved plan by id.
func (c *Client) GetPlan(ctx context.Context, id string) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodGet, "v0/plans/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
