package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend-theentity/internal/db"
	"backend-theentity/internal/pursuit"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound     = errors.New("save not found")
	ErrDuplicateRun = errors.New("run already ingested")
)

// Store persists saves. Every write runs inside a transaction that holds the
// save row lock and touches only the columns the change needs.
type Store struct {
	db db.TxQuerier
}

func NewStore(db db.TxQuerier) *Store {
	return &Store{db: db}
}

const selectSave = `
	SELECT player_id, start_date, duration_days, entity_speed, last_speed_update_day, adaptive_mode, difficulty,
	       total_km_run, total_paused_hours, inventory_battery, inventory_emitter, inventory_casing,
	       emp_usage_count, boost_usage_count, free_emp_claimed, free_boost_claimed, continues_used,
	       last_emp_usage, last_quest_generation_day, onboarding_complete, version
	FROM saves WHERE player_id=$1`

// Get loads the full save with run history, open quest and badges.
func (s *Store) Get(ctx context.Context, playerID string) (pursuit.Save, error) {
	return load(ctx, s.db, playerID, false)
}

func load(ctx context.Context, q db.Querier, playerID string, forUpdate bool) (pursuit.Save, error) {
	query := selectSave
	if forUpdate {
		query += " FOR UPDATE"
	}
	save, err := scanSave(q.QueryRow(ctx, query, playerID))
	if err != nil {
		return pursuit.Save{}, err
	}

	if save.RunHistory, err = loadRuns(ctx, q, playerID); err != nil {
		return pursuit.Save{}, fmt.Errorf("load runs: %w", err)
	}
	if save.ActiveQuest, err = loadOpenQuest(ctx, q, playerID); err != nil {
		return pursuit.Save{}, fmt.Errorf("load quest: %w", err)
	}
	if save.Badges, err = loadBadges(ctx, q, playerID); err != nil {
		return pursuit.Save{}, fmt.Errorf("load badges: %w", err)
	}
	return save, nil
}

func scanSave(row pgx.Row) (pursuit.Save, error) {
	var s pursuit.Save
	var difficulty string
	err := row.Scan(&s.PlayerID, &s.StartDate, &s.DurationDays, &s.EntitySpeed, &s.LastSpeedUpdateDay, &s.AdaptiveMode, &difficulty,
		&s.TotalKmRun, &s.TotalPausedHours, &s.Inventory.Battery, &s.Inventory.Emitter, &s.Inventory.Casing,
		&s.EMPUsageCount, &s.BoostUsageCount, &s.FreeEMPClaimed, &s.FreeBoostClaimed, &s.ContinuesUsed,
		&s.LastEMPUsage, &s.LastQuestGenerationDay, &s.OnboardingComplete, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return pursuit.Save{}, ErrNotFound
	}
	if err != nil {
		return pursuit.Save{}, err
	}
	s.Difficulty = pursuit.Difficulty(difficulty)
	return s, nil
}

func loadRuns(ctx context.Context, q db.Querier, playerID string) ([]pursuit.Run, error) {
	rows, err := q.Query(ctx, `
		SELECT id, run_date, km, credited_km, notes, run_type, source, COALESCE(strava_id, '')
		FROM runs WHERE player_id=$1
		ORDER BY run_date DESC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []pursuit.Run{}
	for rows.Next() {
		var r pursuit.Run
		var runType, source string
		if err := rows.Scan(&r.ID, &r.Date, &r.Km, &r.Credited, &r.Notes, &runType, &source, &r.StravaID); err != nil {
			return nil, err
		}
		r.Type = pursuit.RunType(runType)
		r.Source = pursuit.Source(source)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func loadOpenQuest(ctx context.Context, q db.Querier, playerID string) (*pursuit.Quest, error) {
	var quest pursuit.Quest
	var part, status string
	err := q.QueryRow(ctx, `
		SELECT id, title, distance_km, progress_km, reward_part, status, created_at
		FROM quests WHERE player_id=$1 AND status IN ('available', 'active')
		LIMIT 1
	`, playerID).Scan(&quest.ID, &quest.Title, &quest.Distance, &quest.Progress, &part, &status, &quest.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	quest.RewardPart = pursuit.Part(part)
	quest.Status = pursuit.QuestStatus(status)
	return &quest, nil
}

func loadBadges(ctx context.Context, q db.Querier, playerID string) ([]pursuit.Badge, error) {
	rows, err := q.Query(ctx, `
		SELECT id, title, earned_at
		FROM badges WHERE player_id=$1
		ORDER BY earned_at
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	badges := []pursuit.Badge{}
	for rows.Next() {
		var b pursuit.Badge
		if err := rows.Scan(&b.ID, &b.Title, &b.Date); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// Reset writes a fresh save for the player, wiping history, quests and badges
// from any previous pursuit. The Strava link survives a restart.
func (s *Store) Reset(ctx context.Context, save pursuit.Save, namespace string) (pursuit.Save, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return pursuit.Save{}, fmt.Errorf("begin: %w", err)
	}

	for _, table := range []string{"runs", "quests", "badges"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE player_id=$1`, save.PlayerID); err != nil {
			_ = tx.Rollback(ctx)
			return pursuit.Save{}, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO saves (player_id, app_namespace, start_date, duration_days, entity_speed, adaptive_mode, difficulty, onboarding_complete)
		VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE)
		ON CONFLICT (player_id) DO UPDATE SET
			start_date=EXCLUDED.start_date, duration_days=EXCLUDED.duration_days, entity_speed=EXCLUDED.entity_speed,
			adaptive_mode=EXCLUDED.adaptive_mode, difficulty=EXCLUDED.difficulty, onboarding_complete=TRUE,
			last_speed_update_day=0, total_km_run=0, total_paused_hours=0,
			inventory_battery=0, inventory_emitter=0, inventory_casing=0,
			emp_usage_count=0, boost_usage_count=0, free_emp_claimed=FALSE, free_boost_claimed=FALSE,
			continues_used=0, last_emp_usage=NULL, last_quest_generation_day=0,
			version=saves.version + 1, updated_at=now()
		RETURNING version
	`, save.PlayerID, namespace, save.StartDate, save.DurationDays, save.EntitySpeed, save.AdaptiveMode, string(save.Difficulty)).Scan(&save.Version)
	if err != nil {
		_ = tx.Rollback(ctx)
		return pursuit.Save{}, fmt.Errorf("write save: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return pursuit.Save{}, fmt.Errorf("commit: %w", err)
	}
	return save, nil
}

// HasStravaRun is the cheap idempotency pre-check used before calling out to
// the Strava API. The unique index on (player_id, strava_id) is the real guard.
func (s *Store) HasStravaRun(ctx context.Context, playerID, stravaID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM runs WHERE player_id=$1 AND strava_id=$2)
	`, playerID, stravaID).Scan(&exists)
	return exists, err
}

// ActivePlayers lists players whose pursuit is running, for the sweeper.
func (s *Store) ActivePlayers(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT player_id FROM saves
		WHERE onboarding_complete
		ORDER BY player_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
