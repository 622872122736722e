package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcadeops/internal/checklist"
	"arcadeops/internal/config"
	"arcadeops/internal/db"
	"arcadeops/internal/domain"
	"arcadeops/internal/engine"
	"arcadeops/internal/events"
	"arcadeops/internal/migrate"
	"arcadeops/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn))

	eng := engine.New(conn, config.Default("fac-1"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	_, err = eng.InitFacility(ctx, "fac-1", "Test FEC", "tester")
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestMigrateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, migrate.Migrate(env.Ctx, env.Engine.DB))
	v, err := migrate.Version(env.Ctx, env.Engine.DB)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGameLifecycle(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.Engine.CreateGame(env.Ctx, engine.GameCreateOptions{Name: "Skee-Ball <b>Lane 1</b>", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, "Skee-Ball Lane 1", g.Name)
	assert.Equal(t, engine.GameUp, g.Status)

	down := "down"
	reason := "coin mech jammed"
	g, err = env.Engine.UpdateGame(env.Ctx, engine.GameUpdateOptions{ID: g.ID, Status: &down, DownReason: &reason})
	require.NoError(t, err)
	assert.Equal(t, engine.GameDown, g.Status)
	assert.Equal(t, reason, g.DownReason)

	up := "Up"
	g, err = env.Engine.UpdateGame(env.Ctx, engine.GameUpdateOptions{ID: g.ID, Status: &up})
	require.NoError(t, err)
	assert.Empty(t, g.DownReason)

	bad := "sideways"
	_, err = env.Engine.UpdateGame(env.Ctx, engine.GameUpdateOptions{ID: g.ID, Status: &bad})
	assert.ErrorIs(t, err, engine.ErrValidation)

	require.NoError(t, env.Engine.DeleteGame(env.Ctx, g.ID, "tester"))
	assert.ErrorIs(t, env.Engine.DeleteGame(env.Ctx, g.ID, "tester"), repo.ErrNotFound)
}

func TestSearchGamesCapsResults(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"Pac-Man", "Ms. Pac-Man", "Galaga", "Pac-Man Battle Royale"} {
		_, err := env.Engine.CreateGame(env.Ctx, engine.GameCreateOptions{Name: name})
		require.NoError(t, err)
	}
	games, err := env.Engine.SearchGames(env.Ctx, "PAC", 2)
	require.NoError(t, err)
	assert.Len(t, games, 2)

	games, err = env.Engine.SearchGames(env.Ctx, "pac", 0)
	require.NoError(t, err)
	assert.Len(t, games, 3)

	games, err = env.Engine.SearchGames(env.Ctx, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestCreateIssueSequenceAndDuplicates(t *testing.T) {
	env := newTestEnv(t)
	g, err := env.Engine.CreateGame(env.Ctx, engine.GameCreateOptions{Name: "Skee-Ball"})
	require.NoError(t, err)

	opts := engine.IssueCreateOptions{
		Type: "game", Area: "Game Room", GameID: g.ID, Category: "Screen/Display",
		Priority: "high", Description: "flicker", Status: "Open", ActorID: "tester",
	}
	first, err := env.Engine.CreateIssue(env.Ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "IS-001", first.ID)
	assert.Equal(t, "High", first.Priority)
	assert.Equal(t, "Skee-Ball", first.EquipmentName)

	_, err = env.Engine.CreateIssue(env.Ctx, opts)
	var dup *engine.DuplicateIssueError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "IS-001", dup.ExistingIssueID())

	opts.AllowDuplicate = true
	second, err := env.Engine.CreateIssue(env.Ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, "IS-002", second.ID)

	other := opts
	other.AllowDuplicate = false
	other.Category = "Sound"
	third, err := env.Engine.CreateIssue(env.Ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "IS-003", third.ID)
}

func TestClosedIssuesAreNotDuplicates(t *testing.T) {
	env := newTestEnv(t)
	opts := engine.IssueCreateOptions{Area: "Bathroom", EquipmentLocation: "Men's", Description: "Sink leaking"}
	is, err := env.Engine.CreateIssue(env.Ctx, opts)
	require.NoError(t, err)

	resolved := "resolved"
	is, err = env.Engine.UpdateIssue(env.Ctx, engine.IssueUpdateOptions{ID: is.ID, Status: &resolved})
	require.NoError(t, err)
	assert.Equal(t, "Closed", is.Status)

	_, err = env.Engine.CreateIssue(env.Ctx, opts)
	require.NoError(t, err)
}

func TestCreateIssueValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{Description: "<script>alert(1)</script>"})
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{Description: "x", Priority: "someday"})
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{Description: "x", Status: "pending review"})
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{Description: "x", GameID: "999"})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestIssueFiltersAndCounts(t *testing.T) {
	env := newTestEnv(t)
	mk := func(desc, priority, status string) {
		t.Helper()
		_, err := env.Engine.CreateIssue(env.Ctx, engine.IssueCreateOptions{Area: "Kitchen", Description: desc, Priority: priority, Status: status})
		require.NoError(t, err)
	}
	mk("fryer down", "immediate", "open")
	mk("light out", "High", "Open")
	mk("door squeaks", "Low", "Open")
	mk("ice machine", "High", "awaiting_parts")

	counts, err := env.Engine.IssueCounts(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Open)
	assert.Equal(t, 2, counts.Urgent)

	list, err := env.Engine.ListIssues(env.Ctx, repo.IssueFilters{Status: "awaiting-parts"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Awaiting Parts", list[0].Status)

	list, err = env.Engine.ListIssues(env.Ctx, repo.IssueFilters{Query: "LIGHT"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSaveChecklistRunAppliesPersistPolicy(t *testing.T) {
	env := newTestEnv(t)

	progress, err := env.Engine.ChecklistProgress(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "0/17 Done", progress.Label)

	summary := checklist.Summary{
		RunID:      "run-1",
		TotalSteps: 4,
		Entries: []checklist.Entry{
			{StepID: "walkthrough", Title: "Walk-through", Persist: checklist.PersistOnIssue, Response: checklist.Bool(true)},
			{StepID: "tpt_goals", Title: "TPT Goals", Persist: checklist.PersistAlways, Response: checklist.ActionTaken()},
			{StepID: "breakers", Title: "Breakers", Persist: checklist.PersistOnIssue, Response: checklist.Bool(false)},
		},
	}
	run, err := env.Engine.SaveChecklistRun(env.Ctx, engine.RunSaveOptions{Summary: summary, ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, 3, run.Answered)
	assert.Equal(t, 1, run.IssueCount)

	progress, err = env.Engine.ChecklistProgress(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "3/4 Done", progress.Label)
	require.NotNil(t, progress.Run)
	require.Len(t, progress.Run.Entries, 2)
	assert.Equal(t, "tpt_goals", progress.Run.Entries[0].StepID)
	assert.Equal(t, "action taken", progress.Run.Entries[0].Response)
	assert.Equal(t, "no", progress.Run.Entries[1].Response)

	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{Type: events.ChecklistFinished})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "run-1", evts[0].EntityID)
}

func TestSaveChecklistRunKeepsNotesItemsAndFigures(t *testing.T) {
	env := newTestEnv(t)

	summary := checklist.Summary{
		RunID:      "run-2",
		TotalSteps: 3,
		Completed:  3,
		Entries: []checklist.Entry{
			{StepID: "tpt_goals", Title: "TPT Goals", Persist: checklist.PersistAlways, Response: checklist.ActionTaken(),
				Notes: "posted at <b>prize counter</b>", Figures: map[string]string{"daily_tpt": "1450", "games_out_of_range": "3"}},
			{StepID: "bathrooms", Title: "Bathrooms", Persist: checklist.PersistOnIssue, Response: checklist.Bool(false), Items: []checklist.ItemResult{
				{Item: "Sinks", Status: checklist.ItemOK},
				{Item: "Locks", Status: checklist.ItemIssue, Notes: "stall 2 latch broken"},
			}},
		},
	}
	run, err := env.Engine.SaveChecklistRun(env.Ctx, engine.RunSaveOptions{Summary: summary})
	require.NoError(t, err)
	assert.Equal(t, 3, run.Completed)
	assert.Equal(t, 2, run.Answered)

	progress, err := env.Engine.ChecklistProgress(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "3/3 Done", progress.Label)
	require.NotNil(t, progress.Run)
	require.Len(t, progress.Run.Entries, 2)

	tpt := progress.Run.Entries[0]
	assert.Equal(t, "posted at prize counter", tpt.Notes)
	assert.Equal(t, map[string]string{"daily_tpt": "1450", "games_out_of_range": "3"}, tpt.Figures)
	assert.Nil(t, tpt.Items)

	bathrooms := progress.Run.Entries[1]
	assert.Empty(t, bathrooms.Notes)
	assert.Nil(t, bathrooms.Figures)
	assert.Equal(t, []domain.ChecklistItemNote{
		{Item: "Sinks", Status: "OK"},
		{Item: "Locks", Status: "Issue Found", Notes: "stall 2 latch broken"},
	}, bathrooms.Items)
}

func TestSaveChecklistRunValidatesCompleted(t *testing.T) {
	env := newTestEnv(t)
	entries := []checklist.Entry{
		{StepID: "a", Response: checklist.Bool(true)},
		{StepID: "b", Response: checklist.Bool(true)},
	}
	for _, completed := range []int{1, 4} {
		_, err := env.Engine.SaveChecklistRun(env.Ctx, engine.RunSaveOptions{Summary: checklist.Summary{TotalSteps: 3, Completed: completed, Entries: entries}})
		assert.ErrorIs(t, err, engine.ErrValidation, "completed=%d", completed)
	}
}

func TestPMAndTPTSettings(t *testing.T) {
	env := newTestEnv(t)
	pm, err := env.Engine.LogPM(env.Ctx, engine.PMLogOptions{GameName: "Galaga", CompletedBy: "sam"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", pm.PMDate)

	_, err = env.Engine.LogPM(env.Ctx, engine.PMLogOptions{GameName: "Galaga", CompletedBy: "sam", PMDate: "01/02/2024"})
	assert.ErrorIs(t, err, engine.ErrValidation)

	pms, err := env.Engine.ListPMs(env.Ctx, "", "galaga", 0)
	require.NoError(t, err)
	assert.Len(t, pms, 1)

	s, err := env.Engine.TPTSettings(env.Ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Target)
	assert.True(t, s.IncludeBirthdayBlast)

	s.Target = 5
	_, err = env.Engine.SetTPTSettings(env.Ctx, "", s, "tester")
	assert.ErrorIs(t, err, engine.ErrValidation)

	s.Target = 2.5
	saved, err := env.Engine.SetTPTSettings(env.Ctx, "", s, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2.5, saved.Target)
}

func TestCreateAPIKeyStoresHash(t *testing.T) {
	env := newTestEnv(t)
	key, raw, err := env.Engine.CreateAPIKey(env.Ctx, "kiosk-1", "front kiosk")
	require.NoError(t, err)
	assert.NotEqual(t, raw, key.KeyHash)

	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", got.ActorID)

	keys, err := env.Engine.ListAPIKeys(env.Ctx, "kiosk-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "tester"))
	_, err = env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(raw))
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, env.Engine.RevokeAPIKey(env.Ctx, key.ID, "tester"), repo.ErrNotFound)
}
