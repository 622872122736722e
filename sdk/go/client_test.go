package arcadesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL + "/")
	c.Limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestSearchGamesSendsQueryAndCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/games", r.URL.Path)
		assert.Equal(t, "pac", r.URL.Query().Get("q"))
		assert.Equal(t, "8", r.URL.Query().Get("limit"))
		assert.Equal(t, "ak_1", r.Header.Get("X-Api-Key"))
		assert.Empty(t, r.Header.Get("X-Actor-Id"))
		_ = json.NewEncoder(w).Encode([]Game{{ID: "1", Name: "Pac-Man", Status: "Up"}})
	})
	c.APIKey = "ak_1"
	c.ActorID = "ignored"

	games, err := c.SearchGames(context.Background(), "pac", 8)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Pac-Man", games[0].Name)
}

func TestCreateIssueDuplicate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req IssueRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.AllowDuplicate {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Issue{ID: "IS-002", Description: req.Description})
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"duplicate_issue","message":"duplicate issue","details":{"existing_id":"IS-001"}}}`))
	})
	c.ActorID = "kiosk"

	req := IssueRequest{Type: "game", GameID: "3", Category: "Sound", Description: "no audio"}
	_, err := c.CreateIssue(context.Background(), req)
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "IS-001", dup.ExistingIssueID())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	req.AllowDuplicate = true
	is, err := c.CreateIssue(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "IS-002", is.ID)
}

func TestAPIErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"bad_request","message":"description is required"}}`))
	})
	_, err := c.CreateIssue(context.Background(), IssueRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad_request", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "description is required")
	var dup *DuplicateError
	assert.False(t, errors.As(err, &dup))
}

func TestListIssuesEncodesFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "in progress", q.Get("status"))
		assert.Equal(t, "Kitchen", q.Get("area"))
		assert.False(t, q.Has("game_id"))
		_, _ = w.Write([]byte(`[{"id":"IS-004","status":"In Progress"}]`))
	})
	items, err := c.ListIssues(context.Background(), IssueFilters{Status: "in progress", Area: "Kitchen"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "IS-004", items[0].ID)
}

func TestSaveChecklistRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v0/checklist-runs", r.URL.Path)
		var req ChecklistRunRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Entries, 1) {
			assert.Equal(t, "stall 2", req.Entries[0].Items[0].Notes)
			assert.Equal(t, "posted", req.Entries[0].Notes)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ChecklistRun{ID: req.RunID, TotalSteps: req.TotalSteps, Completed: req.Completed, Answered: len(req.Entries), Entries: req.Entries})
	})
	run, err := c.SaveChecklistRun(context.Background(), ChecklistRunRequest{
		RunID: "r1", TotalSteps: 2, Completed: 2, Entries: []RunEntry{{
			StepID: "a", Response: "no", Notes: "posted",
			Items: []RunItem{{Item: "Locks", Status: "Issue Found", Notes: "stall 2"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Answered)
	assert.Equal(t, 2, run.Completed)
	require.Len(t, run.Entries, 1)
	assert.Equal(t, "Issue Found", run.Entries[0].Items[0].Status)
}

func TestLimiterHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"open":1,"urgent":0}`))
	})
	c.Limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	_, err := c.IssueCounts(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.IssueCounts(ctx)
	assert.Error(t, err)
}
