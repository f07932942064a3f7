package progression

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend-theentity/internal/save"
	"backend-theentity/internal/strava"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

var mappingCols = []string{"athlete_id", "player_id", "app_namespace"}

func expectMapping(mock pgxmock.PgxPoolIface) {
	mock.ExpectQuery(`FROM strava_mappings`).WithArgs("athlete-1").
		WillReturnRows(pgxmock.NewRows(mappingCols).AddRow("athlete-1", testPlayer, "app"))
}

func expectKnownRun(mock pgxmock.PgxPoolIface, id string, known bool) {
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(testPlayer, id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(known))
}

func TestSyncActivityIngestsRun(t *testing.T) {
	f := newFixture(t)
	started := t0.Add(time.Hour)
	f.strava.activities["555"] = strava.Activity{ID: 555, Name: "Morning Run", Type: "Run", Distance: 6420, StartDate: started}

	expectMapping(f.mock)
	expectKnownRun(f.mock, "555", false)
	expectValidCredential(f.mock, "access")
	f.mock.ExpectBegin()
	expectLoad(f.mock, saveRow(saveState{}), nil)
	f.mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), testPlayer, started, 6.42, 6.42, "Morning Run", "survival", "strava", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSaveDelta(f.mock, 6.42)
	f.mock.ExpectCommit()

	res, err := f.svc.SyncActivity(context.Background(), "athlete-1", "555")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != SyncIngested || res.Run.View.Save.TotalKmRun != 6.42 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Run.Outcome.Run.StravaID != "555" {
		t.Fatalf("expected strava id on run")
	}
	f.verify(t)
}

func TestSyncActivityRoutesIntoActiveQuest(t *testing.T) {
	f := newFixture(t)
	started := t0.Add(time.Hour)
	f.strava.activities["556"] = strava.Activity{ID: 556, Name: "Tempo", Type: "Run", Distance: 7000, StartDate: started}

	expectMapping(f.mock)
	expectKnownRun(f.mock, "556", false)
	expectValidCredential(f.mock, "access")
	f.mock.ExpectBegin()
	expectLoadWithQuest(f.mock, saveRow(saveState{total: 20}), nil,
		pgxmock.NewRows(questCols).AddRow("quest-1", "Signal Relay", 10.0, 6.0, "emitter", "active", t0))
	f.mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), testPlayer, started, 7.0, 3.0, "Tempo (Quest Complete + 3.00km Safety)", "quest_complete", "strava", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec(`UPDATE quests SET`).
		WithArgs("quest-1", 10.0, "completed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec(`INSERT INTO badges`).
		WithArgs(pgxmock.AnyArg(), testPlayer, "Signal Relay", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSaveDelta(f.mock, 3.0)
	f.mock.ExpectCommit()

	res, err := f.svc.SyncActivity(context.Background(), "athlete-1", "556")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != SyncIngested || !res.Run.Outcome.QuestCompleted() {
		t.Fatalf("expected the run to complete the quest, got %+v", res)
	}
	sv := res.Run.View.Save
	if sv.TotalKmRun != 23 || sv.ActiveQuest != nil || sv.Inventory.Emitter != 1 || len(sv.Badges) != 1 {
		t.Fatalf("expected overflow credit, part and badge, got %+v", sv)
	}
	f.verify(t)
}

func TestSyncActivityUnknownAthlete(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(`FROM strava_mappings`).WithArgs("stranger").WillReturnError(pgx.ErrNoRows)

	if _, err := f.svc.SyncActivity(context.Background(), "stranger", "1"); !errors.Is(err, save.ErrMappingNotFound) {
		t.Fatalf("expected ErrMappingNotFound, got %v", err)
	}
	if f.strava.fetched != 0 {
		t.Fatalf("strava must not be called")
	}
}

func TestSyncActivityKnownRunSkipsFetch(t *testing.T) {
	f := newFixture(t)
	expectMapping(f.mock)
	expectKnownRun(f.mock, "555", true)

	res, err := f.svc.SyncActivity(context.Background(), "athlete-1", "555")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != SyncDuplicate || f.strava.fetched != 0 {
		t.Fatalf("expected duplicate without fetch, got %+v", res)
	}
	f.verify(t)
}

func TestSyncActivityIgnoresOtherSports(t *testing.T) {
	f := newFixture(t)
	f.strava.activities["7"] = strava.Activity{ID: 7, Type: "Ride", Distance: 30000}

	expectMapping(f.mock)
	expectKnownRun(f.mock, "7", false)
	expectValidCredential(f.mock, "access")

	res, err := f.svc.SyncActivity(context.Background(), "athlete-1", "7")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != SyncSkipped {
		t.Fatalf("expected skipped, got %s", res.Status)
	}
	f.verify(t)
}

func TestSyncActivityRefreshesRejectedToken(t *testing.T) {
	f := newFixture(t)
	f.strava.stale = "stale"
	f.strava.activities["8"] = strava.Activity{ID: 8, Name: "Recovery", Type: "Run", Distance: 3000}

	expectMapping(f.mock)
	expectKnownRun(f.mock, "8", false)
	expectValidCredential(f.mock, "stale")
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`FOR UPDATE`).WithArgs(testPlayer).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("athlete-1", "stale", "refresh", nil))
	f.mock.ExpectExec(`UPDATE saves SET strava_access_token`).
		WithArgs(testPlayer, "fresh", "refresh-2", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()
	f.mock.ExpectBegin()
	expectLoad(f.mock, saveRow(saveState{}), nil)
	f.mock.ExpectExec(`INSERT INTO runs`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectSaveDelta(f.mock, 3.0)
	f.mock.ExpectCommit()

	res, err := f.svc.SyncActivity(context.Background(), "athlete-1", "8")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != SyncIngested || f.strava.refreshed != 1 {
		t.Fatalf("expected one refresh and an ingested run, got %+v refreshed=%d", res, f.strava.refreshed)
	}
	f.verify(t)
}

func TestSyncActivityConcurrentDuplicate(t *testing.T) {
	f := newFixture(t)
	f.strava.activities["9"] = strava.Activity{ID: 9, Type: "Run", Distance: 5000}

	expectMapping(f.mock)
	expectKnownRun(f.mock, "9", false)
	expectValidCredential(f.mock, "access")
	f.mock.ExpectBegin()
	expectLoad(f.mock, saveRow(saveState{}), nil)
	// another delivery inserted the run between the pre-check and this insert
	f.mock.ExpectExec(`INSERT INTO runs`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	f.mock.ExpectRollback()

	res, err := f.svc.SyncActivity(context.Background(), "athlete-1", "9")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Status != SyncDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Status)
	}
	f.verify(t)
}

func TestBackfillImportsRunsOldestFirst(t *testing.T) {
	f := newFixture(t)
	older := t0.Add(30 * time.Minute)
	newer := t0.Add(90 * time.Minute)
	f.strava.recent = []strava.Activity{
		{ID: 2, Name: "Second", Type: "Run", Distance: 4000, StartDate: newer},
		{ID: 3, Name: "Walk", Type: "Walk", Distance: 2000},
		{ID: 1, Name: "First", Type: "Run", Distance: 3000, StartDate: older},
	}

	expectValidCredential(f.mock, "access")
	for _, run := range []struct {
		name string
		date time.Time
		km   float64
	}{{"First", older, 3.0}, {"Second", newer, 4.0}} {
		f.mock.ExpectBegin()
		expectLoad(f.mock, saveRow(saveState{}), nil)
		f.mock.ExpectExec(`INSERT INTO runs`).
			WithArgs(pgxmock.AnyArg(), testPlayer, run.date, run.km, run.km, run.name, "survival", "strava_backfill", pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		expectSaveDelta(f.mock, run.km)
		f.mock.ExpectCommit()
	}

	res, err := f.svc.Backfill(context.Background(), testPlayer)
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 1 || res.Duplicates != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
	f.verify(t)
}

func TestBackfillWithoutStrava(t *testing.T) {
	f := newFixture(t)
	f.svc.strava = nil

	if _, err := f.svc.Backfill(context.Background(), testPlayer); !errors.Is(err, ErrStravaUnavailable) {
		t.Fatalf("expected ErrStravaUnavailable, got %v", err)
	}
}

func TestLinkStravaValidates(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.LinkStrava(context.Background(), testPlayer, LinkRequest{AthleteID: "a"}); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}

	f.mock.ExpectBegin()
	f.mock.ExpectExec(`UPDATE saves SET strava_athlete_id`).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec(`INSERT INTO strava_mappings`).WithArgs("athlete-1", testPlayer, "app").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	err := f.svc.LinkStrava(context.Background(), testPlayer, LinkRequest{
		AthleteID: "athlete-1", AccessToken: "a", RefreshToken: "r", ExpiresAt: t0.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	f.verify(t)
}
