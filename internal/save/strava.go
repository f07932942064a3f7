package save

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrMappingNotFound = errors.New("strava athlete is not linked")

// Mapping routes an athlete id from webhook events to a player save.
type Mapping struct {
	AthleteID string `json:"athlete_id"`
	PlayerID  string `json:"player_id"`
	Namespace string `json:"app_namespace"`
}

// Credential is the Strava OAuth token pair stored on a save.
type Credential struct {
	AthleteID    string    `json:"athlete_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token should be refreshed before use.
// Tokens within a minute of expiry count as expired.
func (c Credential) Expired(now time.Time) bool {
	return c.AccessToken == "" || !now.Before(c.ExpiresAt.Add(-time.Minute))
}

// LinkStrava stores the credential on the save and points the athlete's
// mapping at this player, replacing any previous owner.
func (s *Store) LinkStrava(ctx context.Context, playerID, namespace string, cred Credential) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE saves SET strava_athlete_id=$2, strava_access_token=$3, strava_refresh_token=$4, strava_token_expires_at=$5, updated_at=now()
		WHERE player_id=$1
	`, playerID, cred.AthleteID, cred.AccessToken, cred.RefreshToken, timePtr(cred.ExpiresAt))
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("store credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO strava_mappings (athlete_id, player_id, app_namespace)
		VALUES ($1,$2,$3)
		ON CONFLICT (athlete_id) DO UPDATE SET player_id=EXCLUDED.player_id, app_namespace=EXCLUDED.app_namespace
	`, cred.AthleteID, playerID, namespace)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("store mapping: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ResolveAthlete(ctx context.Context, athleteID string) (Mapping, error) {
	var m Mapping
	err := s.db.QueryRow(ctx, `
		SELECT athlete_id, player_id, app_namespace
		FROM strava_mappings WHERE athlete_id=$1
	`, athleteID).Scan(&m.AthleteID, &m.PlayerID, &m.Namespace)
	if errors.Is(err, pgx.ErrNoRows) {
		return Mapping{}, ErrMappingNotFound
	}
	return m, err
}

// Unlink removes the athlete mapping and wipes the stored tokens. It returns
// the player that was linked.
func (s *Store) Unlink(ctx context.Context, athleteID string) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}

	var playerID string
	err = tx.QueryRow(ctx, `
		DELETE FROM strava_mappings WHERE athlete_id=$1
		RETURNING player_id
	`, athleteID).Scan(&playerID)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMappingNotFound
		}
		return "", fmt.Errorf("delete mapping: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE saves SET strava_athlete_id='', strava_access_token='', strava_refresh_token='', strava_token_expires_at=NULL, updated_at=now()
		WHERE player_id=$1 AND strava_athlete_id=$2
	`, playerID, athleteID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return "", fmt.Errorf("clear credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return playerID, nil
}

const selectCredential = `
	SELECT strava_athlete_id, strava_access_token, strava_refresh_token, strava_token_expires_at
	FROM saves WHERE player_id=$1`

func scanCredential(row pgx.Row) (Credential, error) {
	var c Credential
	var expires *time.Time
	err := row.Scan(&c.AthleteID, &c.AccessToken, &c.RefreshToken, &expires)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	if expires != nil {
		c.ExpiresAt = *expires
	}
	if c.AthleteID == "" {
		return Credential{}, ErrMappingNotFound
	}
	return c, nil
}

func (s *Store) Credential(ctx context.Context, playerID string) (Credential, error) {
	return scanCredential(s.db.QueryRow(ctx, selectCredential, playerID))
}

// RefreshFunc exchanges a refresh token for a new credential.
type RefreshFunc func(ctx context.Context, c Credential) (Credential, error)

// RefreshCredential returns a usable credential, calling refresh while holding
// the save row lock so concurrent callers never race on the refresh token.
// force refreshes even a token that still looks valid, e.g. after a 401.
func (s *Store) RefreshCredential(ctx context.Context, playerID string, now time.Time, force bool, refresh RefreshFunc) (Credential, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("begin: %w", err)
	}

	current, err := scanCredential(tx.QueryRow(ctx, selectCredential+" FOR UPDATE", playerID))
	if err != nil {
		_ = tx.Rollback(ctx)
		return Credential{}, err
	}
	if !force && !current.Expired(now) {
		if err := tx.Commit(ctx); err != nil {
			return Credential{}, fmt.Errorf("commit: %w", err)
		}
		return current, nil
	}

	fresh, err := refresh(ctx, current)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Credential{}, err
	}
	if fresh.AthleteID == "" {
		fresh.AthleteID = current.AthleteID
	}

	_, err = tx.Exec(ctx, `
		UPDATE saves SET strava_access_token=$2, strava_refresh_token=$3, strava_token_expires_at=$4, updated_at=now()
		WHERE player_id=$1
	`, playerID, fresh.AccessToken, fresh.RefreshToken, timePtr(fresh.ExpiresAt))
	if err != nil {
		_ = tx.Rollback(ctx)
		return Credential{}, fmt.Errorf("store credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Credential{}, fmt.Errorf("commit: %w", err)
	}
	return fresh, nil
}
