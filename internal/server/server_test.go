package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcadeops/internal/config"
	"arcadeops/internal/db"
	"arcadeops/internal/domain"
	"arcadeops/internal/engine"
	"arcadeops/internal/migrate"
)

const testSecret = "test-secret"

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func newTestEngine(t *testing.T, mutate func(*config.Config)) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	cfg := config.Default("fac-1")
	if mutate != nil {
		mutate(cfg)
	}
	e := engine.New(conn, cfg)
	_, err = e.InitFacility(context.Background(), cfg.Facility.ID, "", "tester")
	require.NoError(t, err)
	return e
}

func newTestServer(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	e := newTestEngine(t, nil)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func TestBufferBodyRejectsUnreadableBody(t *testing.T) {
	called := false
	h := bufferBody(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/v0/issues", iotest.ErrReader(errors.New("connection reset")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec.Body.Bytes())
	assert.Equal(t, "bad_request", body.Code)
	assert.Contains(t, body.Message, "connection reset")
}

func TestBufferBodyKeepsBodyForHandlers(t *testing.T) {
	var seen, raw []byte
	h := bufferBody(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen, _ = io.ReadAll(r.Body)
		raw = bodyBytes(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v0/issues", bytes.NewBufferString(`{"description":"x"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, `{"description":"x"}`, string(seen))
	assert.Equal(t, seen, raw)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestAuthentication(t *testing.T) {
	srv, e := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/games", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/games", nil, map[string]string{"X-Api-Key": "ak_nope"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	_, raw, err := e.CreateAPIKey(context.Background(), "kiosk-1", "front")
	require.NoError(t, err)
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/games", nil, map[string]string{"X-Api-Key": raw})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "manager",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/games", map[string]any{"name": "Galaga"}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/games", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestLegacyHeaderRequiresOptIn(t *testing.T) {
	e := newTestEngine(t, nil)
	handler, err := New(Config{Engine: e, Auth: AuthConfig{JWTSecret: testSecret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/games", nil, actorHeader)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestGameSearch(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, name := range []string{"Pac-Man", "Ms. Pac-Man", "Galaga"} {
		res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/games", map[string]any{"name": name}, actorHeader)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	}

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/games?q=pac&limit=1", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var games []GameSummary
	require.NoError(t, json.Unmarshal(data, &games))
	require.Len(t, games, 1)
	assert.Contains(t, games[0].Name, "Pac-Man")
	assert.Equal(t, engine.GameUp, games[0].Status)

	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v0/games/"+games[0].ID, map[string]any{"status": "down", "down_reason": "no power"}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var g domain.Game
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Equal(t, engine.GameDown, g.Status)

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/games/"+games[0].ID, nil, actorHeader)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, http.MethodDelete, srv.URL+"/v0/games/"+games[0].ID, nil, actorHeader)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, data).Code)
}

func TestCreateIssueDuplicateConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/games", map[string]any{"name": "Skee-Ball"}, actorHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var g domain.Game
	require.NoError(t, json.Unmarshal(data, &g))

	req := map[string]any{
		"type": "game", "area": "Game Room", "game_id": g.ID, "category": "Sound",
		"priority": "Medium", "description": "no audio", "status": "Open",
	}
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/issues", req, actorHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var first domain.Issue
	require.NoError(t, json.Unmarshal(data, &first))
	assert.Equal(t, "IS-001", first.ID)
	assert.Equal(t, "tester", first.CreatedBy)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/issues", req, actorHeader)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	apiErr := decodeError(t, data)
	assert.Equal(t, "duplicate_issue", apiErr.Code)
	assert.Equal(t, "IS-001", apiErr.Details["existing_id"])

	req["allow_duplicate"] = true
	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/issues", req, actorHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/issues/counts", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"open":2,"urgent":0}`, string(data))

	res, data = doJSON(t, http.MethodPatch, srv.URL+"/v0/issues/IS-001", map[string]any{"status": "in_progress"}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/issues?status=in-progress", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var issues []domain.Issue
	require.NoError(t, json.Unmarshal(data, &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "In Progress", issues[0].Status)
}

func TestCreateIssueValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/issues", map[string]any{"description": "   "}, actorHeader)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", decodeError(t, data).Code)
}

func TestChecklistRunAndProgress(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/checklist-runs/latest", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var p engine.Progress
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "0/17 Done", p.Label)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/checklist-runs", map[string]any{
		"run_id":      "run-7",
		"total_steps": 3,
		"entries": []map[string]any{
			{"step_id": "walkthrough", "title": "Walk-through", "persist": "on_issue", "response": "yes"},
			{"step_id": "tpt_goals", "title": "TPT Goals", "response": "action taken"},
		},
	}, actorHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var run domain.ChecklistRun
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, 2, run.Answered)
	require.Len(t, run.Entries, 1)
	assert.Equal(t, "tpt_goals", run.Entries[0].StepID)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/checklist-runs/latest", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "2/3 Done", p.Label)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/checklist-runs", map[string]any{
		"total_steps": 1,
		"entries":     []map[string]any{{"step_id": "", "response": "yes"}},
	}, actorHeader)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/checklist-runs", map[string]any{
		"total_steps": 1,
		"entries": []map[string]any{{"step_id": "bathrooms", "response": "no", "items": []map[string]any{
			{"item": "Sinks", "status": "Broken"},
		}}},
	}, actorHeader)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestChecklistRunCarriesCompletedAndDetails(t *testing.T) {
	srv, _ := newTestServer(t)

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/checklist-runs", map[string]any{
		"run_id":      "run-8",
		"total_steps": 3,
		"completed":   3,
		"entries": []map[string]any{
			{"step_id": "tpt_goals", "title": "TPT Goals", "response": "action taken", "notes": "posted", "figures": map[string]string{"daily_tpt": "1450"}},
			{"step_id": "bathrooms", "title": "Bathrooms", "persist": "on_issue", "response": "no", "items": []map[string]any{
				{"item": "Sinks", "status": "OK"},
				{"item": "Locks", "status": "Issue Found", "notes": "stall 2"},
			}},
		},
	}, actorHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/checklist-runs/latest", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var p engine.Progress
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "3/3 Done", p.Label)
	require.NotNil(t, p.Run)
	require.Len(t, p.Run.Entries, 2)
	assert.Equal(t, "posted", p.Run.Entries[0].Notes)
	assert.Equal(t, map[string]string{"daily_tpt": "1450"}, p.Run.Entries[0].Figures)
	require.Len(t, p.Run.Entries[1].Items, 2)
	assert.Equal(t, "Issue Found", p.Run.Entries[1].Items[1].Status)
	assert.Equal(t, "stall 2", p.Run.Entries[1].Items[1].Notes)
}

func TestPMsAndTPTSettings(t *testing.T) {
	srv, _ := newTestServer(t)
	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/pms", map[string]any{"game_name": "Galaga", "pm_date": "2024-03-01"}, actorHeader)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var pm domain.PMLog
	require.NoError(t, json.Unmarshal(data, &pm))
	assert.Equal(t, "tester", pm.CompletedBy)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/pms?game_name=galaga", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var pms []domain.PMLog
	require.NoError(t, json.Unmarshal(data, &pms))
	assert.Len(t, pms, 1)

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v0/settings/tpt", map[string]any{
		"lowest_desired_tpt": 2, "highest_desired_tpt": 4, "target_tpt": 9, "include_birthday_blaster": false,
	}, actorHeader)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodPut, srv.URL+"/v0/settings/tpt", map[string]any{
		"lowest_desired_tpt": 2, "highest_desired_tpt": 4, "target_tpt": 3.5, "include_birthday_blaster": false,
	}, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/settings/tpt", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var s domain.TPTSettings
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 3.5, s.Target)
	assert.False(t, s.IncludeBirthdayBlast)
}

func TestEventsPagination(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, name := range []string{"A", "B", "C"} {
		res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/games", map[string]any{"name": name}, actorHeader)
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/events?entity_kind=game&limit=2", nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var page paginatedEvents
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, "C", page.Items[0].Payload["name"])
	require.NotEmpty(t, page.NextCursor)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/events?entity_kind=game&limit=2&cursor="+page.NextCursor, nil, actorHeader)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "A", page.Items[0].Payload["name"])
	assert.Empty(t, page.NextCursor)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, actorHeader)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []webhookEvent
	var signatures []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		got = append(got, evt)
		signatures = append(signatures, r.Header.Get("X-Arcade-Signature"))
		mu.Unlock()
	}))
	defer hook.Close()

	e := newTestEngine(t, func(c *config.Config) {
		c.Webhooks = []config.Webhook{{URL: hook.URL, Events: []string{"issue.created"}, Secret: "s3"}}
	})
	d := newWebhookDispatcher(e, nil)
	require.NotNil(t, d)
	ctx := context.Background()
	d.dispatchAll(ctx)

	_, err := e.CreateGame(ctx, engine.GameCreateOptions{Name: "Galaga"})
	require.NoError(t, err)
	_, err = e.CreateIssue(ctx, engine.IssueCreateOptions{Area: "Kitchen", Description: "fryer"})
	require.NoError(t, err)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "issue.created", got[0].Type)
	assert.Equal(t, "IS-001", got[0].EntityID)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, signatures[0])
}

func TestWebhooksDisabledWithoutConfig(t *testing.T) {
	e := newTestEngine(t, nil)
	assert.Nil(t, newWebhookDispatcher(e, nil))
}
