package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"backend-theentity/internal/config"
	"backend-theentity/internal/pursuit"
	"backend-theentity/internal/save"
	"backend-theentity/internal/strava"
	"backend-theentity/internal/stream"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var (
	t0         = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	testPlayer = "player-1"
	saveCols   = []string{"player_id", "start_date", "duration_days", "entity_speed", "last_speed_update_day", "adaptive_mode", "difficulty", "total_km_run", "total_paused_hours", "inventory_battery", "inventory_emitter", "inventory_casing", "emp_usage_count", "boost_usage_count", "free_emp_claimed", "free_boost_claimed", "continues_used", "last_emp_usage", "last_quest_generation_day", "onboarding_complete", "version"}
	runCols    = []string{"id", "run_date", "km", "credited_km", "notes", "run_type", "source", "strava_id"}
	credCols   = []string{"strava_athlete_id", "strava_access_token", "strava_refresh_token", "strava_token_expires_at"}
	questCols  = []string{"id", "title", "distance_km", "progress_km", "reward_part", "status", "created_at"}
)

type saveState struct {
	total     float64
	freeEMP   bool
	freeBoost bool
	pending   bool
}

func saveRow(s saveState) *pgxmock.Rows {
	return pgxmock.NewRows(saveCols).
		AddRow(testPlayer, t0, 30, 3.0, 0, true, "medium", s.total, 0.0, 0, 0, 0, 0, 0, s.freeEMP, s.freeBoost, 0, nil, 0, !s.pending, int64(1))
}

func expectLoad(mock pgxmock.PgxPoolIface, row *pgxmock.Rows, runs *pgxmock.Rows) {
	expectLoadWithQuest(mock, row, runs, nil)
}

// expectLoadWithQuest is expectLoad with an open quest row; nil means none.
func expectLoadWithQuest(mock pgxmock.PgxPoolIface, row, runs, quest *pgxmock.Rows) {
	if runs == nil {
		runs = pgxmock.NewRows(runCols)
	}
	mock.ExpectQuery(`FROM saves WHERE player_id=\$1`).WithArgs(testPlayer).WillReturnRows(row)
	mock.ExpectQuery(`FROM runs WHERE player_id=\$1`).WithArgs(testPlayer).WillReturnRows(runs)
	if quest == nil {
		mock.ExpectQuery(`FROM quests WHERE player_id=\$1`).WithArgs(testPlayer).WillReturnError(pgx.ErrNoRows)
	} else {
		mock.ExpectQuery(`FROM quests WHERE player_id=\$1`).WithArgs(testPlayer).WillReturnRows(quest)
	}
	mock.ExpectQuery(`FROM badges WHERE player_id=\$1`).WithArgs(testPlayer).WillReturnRows(pgxmock.NewRows([]string{"id", "title", "earned_at"}))
}

// expectSaveDelta matches the saves delta update on its km increment.
func expectSaveDelta(mock pgxmock.PgxPoolIface, km float64) {
	args := []any{testPlayer, km}
	for i := 0; i < 13; i++ {
		args = append(args, pgxmock.AnyArg())
	}
	mock.ExpectExec(`UPDATE saves SET\s+total_km_run`).WithArgs(args...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func expectValidCredential(mock pgxmock.PgxPoolIface, token string) {
	exp := t0.Add(24 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM saves WHERE player_id=\$1 FOR UPDATE`).WithArgs(testPlayer).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("athlete-1", token, "refresh", &exp))
	mock.ExpectCommit()
}

type recorder struct {
	mu     sync.Mutex
	events []stream.Event
}

func (r *recorder) Publish(_ context.Context, e stream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeStrava struct {
	activities map[string]strava.Activity
	recent     []strava.Activity
	stale      string
	fetched    int
	refreshed  int
}

func (f *fakeStrava) Activity(_ context.Context, token, id string) (strava.Activity, error) {
	if token == f.stale {
		return strava.Activity{}, strava.ErrUnauthorized
	}
	f.fetched++
	a, ok := f.activities[id]
	if !ok {
		return strava.Activity{}, strava.ErrNotFound
	}
	return a, nil
}

func (f *fakeStrava) RecentActivities(_ context.Context, token string, limit int) ([]strava.Activity, error) {
	if token == f.stale {
		return nil, strava.ErrUnauthorized
	}
	return f.recent, nil
}

func (f *fakeStrava) Refresh(_ context.Context, refreshToken string) (strava.Token, error) {
	f.refreshed++
	return strava.Token{AccessToken: "fresh", RefreshToken: refreshToken + "-2", ExpiresAt: t0.Add(6 * time.Hour)}, nil
}

type fixture struct {
	mock   pgxmock.PgxPoolIface
	svc    *Service
	events *recorder
	strava *fakeStrava
	clock  *pursuit.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	f := &fixture{
		mock:   mock,
		events: &recorder{},
		strava: &fakeStrava{activities: map[string]strava.Activity{}},
		clock:  pursuit.NewFakeClock(t0.Add(2 * time.Hour)),
	}
	f.svc = NewService(Deps{
		Store:     save.NewStore(mock),
		Strava:    f.strava,
		Events:    f.events,
		Balance:   config.DefaultBalance(),
		Clock:     f.clock,
		Namespace: "app",
	})
	return f
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
