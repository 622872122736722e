package arcadesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client is a minimal facility API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// Limiter throttles outgoing requests; search-as-you-type fires one per keystroke.
	Limiter *rate.Limiter
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
		Limiter: rate.NewLimiter(rate.Every(time.Second/10), 5),
	}
}

type Game struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Issue struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	Area              string `json:"area,omitempty"`
	GameID            string `json:"game_id,omitempty"`
	EquipmentName     string `json:"equipment_name,omitempty"`
	EquipmentLocation string `json:"equipment_location,omitempty"`
	Category          string `json:"category,omitempty"`
	Priority          string `json:"priority"`
	Description       string `json:"description"`
	Notes             string `json:"notes,omitempty"`
	Status            string `json:"status"`
	CreatedBy         string `json:"created_by"`
	DateLogged        string `json:"date_logged"`
}

// IssueRequest is the body of POST /issues.
type IssueRequest struct {
	Type              string `json:"type,omitempty"`
	Area              string `json:"area,omitempty"`
	GameID            string `json:"game_id,omitempty"`
	EquipmentName     string `json:"equipment_name,omitempty"`
	EquipmentLocation string `json:"equipment_location,omitempty"`
	Category          string `json:"category,omitempty"`
	Priority          string `json:"priority,omitempty"`
	Description       string `json:"description"`
	Notes             string `json:"notes,omitempty"`
	Status            string `json:"status,omitempty"`
	AllowDuplicate    bool   `json:"allow_duplicate,omitempty"`
}

type IssueFilters struct {
	Status string
	Area   string
	GameID string
	Query  string
	Limit  int
}

type IssueCounts struct {
	Open   int `json:"open"`
	Urgent int `json:"urgent"`
}

// RunEntry is one answered step; Response is "yes", "no" or "action taken".
type RunEntry struct {
	StepID   string            `json:"step_id"`
	Title    string            `json:"title,omitempty"`
	Persist  string            `json:"persist,omitempty"`
	Response string            `json:"response"`
	Notes    string            `json:"notes,omitempty"`
	Items    []RunItem         `json:"items,omitempty"`
	Figures  map[string]string `json:"figures,omitempty"`
}

// RunItem is one sub-list result; Status is "OK" or "Issue Found".
type RunItem struct {
	Item   string `json:"item"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

type ChecklistRunRequest struct {
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	TotalSteps int        `json:"total_steps"`
	Completed  int        `json:"completed,omitempty"`
	Entries    []RunEntry `json:"entries"`
}

type ChecklistRun struct {
	ID         string     `json:"id"`
	StartedAt  string     `json:"started_at"`
	FinishedAt string     `json:"finished_at"`
	TotalSteps int        `json:"total_steps"`
	Completed  int        `json:"completed"`
	Answered   int        `json:"answered"`
	IssueCount int        `json:"issue_count"`
	Entries    []RunEntry `json:"entries"`
}

type Progress struct {
	Run   *ChecklistRun `json:"run,omitempty"`
	Label string        `json:"label"`
}

type TPTSettings struct {
	LowestDesired        float64 `json:"lowest_desired_tpt"`
	HighestDesired       float64 `json:"highest_desired_tpt"`
	Target               float64 `json:"target_tpt"`
	IncludeBirthdayBlast bool    `json:"include_birthday_blaster"`
	UpdatedAt            string  `json:"updated_at,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DuplicateError is returned by CreateIssue when the server rejects an
// equivalent open issue. Resubmit with AllowDuplicate to file it anyway.
type DuplicateError struct {
	ExistingID string
	Err        *APIError
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate issue: %s is still open", e.ExistingID)
}

func (e *DuplicateError) Unwrap() error { return e.Err }

// ExistingIssueID names the open issue the request duplicates.
func (e *DuplicateError) ExistingIssueID() string { return e.ExistingID }

// SearchGames is the search-as-you-type lookup.
func (c *Client) SearchGames(ctx context.Context, query string, limit int) ([]Game, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp []Game
	err := c.do(ctx, http.MethodGet, "v0/games?"+q.Encode(), nil, &resp)
	return resp, err
}

// ListGames lists games, optionally filtered by Up/Down status.
func (c *Client) ListGames(ctx context.Context, status string) ([]Game, error) {
	endpoint := "v0/games"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Game
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateIssue files an issue. A 409 duplicate_issue becomes *DuplicateError.
func (c *Client) CreateIssue(ctx context.Context, req IssueRequest) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPost, "v0/issues", req, &resp)
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusConflict && apiErr.Code == "duplicate_issue" {
		existing, _ := apiErr.Details["existing_id"].(string)
		return Issue{}, &DuplicateError{ExistingID: existing, Err: apiErr}
	}
	return resp, err
}

func (c *Client) ListIssues(ctx context.Context, f IssueFilters) ([]Issue, error) {
	q := url.Values{}
	for k, v := range map[string]string{"status": f.Status, "area": f.Area, "game_id": f.GameID, "q": f.Query} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	endpoint := "v0/issues"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Issue
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) IssueCounts(ctx context.Context) (IssueCounts, error) {
	var resp IssueCounts
	err := c.do(ctx, http.MethodGet, "v0/issues/counts", nil, &resp)
	return resp, err
}

func (c *Client) SaveChecklistRun(ctx context.Context, req ChecklistRunRequest) (ChecklistRun, error) {
	var resp ChecklistRun
	err := c.do(ctx, http.MethodPost, "v0/checklist-runs", req, &resp)
	return resp, err
}

// ChecklistProgress returns the latest run and its "X/N Done" badge.
func (c *Client) ChecklistProgress(ctx context.Context) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "v0/checklist-runs/latest", nil, &resp)
	return resp, err
}

func (c *Client) TPTSettings(ctx context.Context) (TPTSettings, error) {
	var resp TPTSettings
	err := c.do(ctx, http.MethodGet, "v0/settings/tpt", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
