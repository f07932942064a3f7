package progression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"backend-theentity/internal/pursuit"
	"backend-theentity/internal/save"
	"backend-theentity/internal/strava"
)

var (
	ErrStravaUnavailable = errors.New("strava is not configured")
	ErrInvalidLink       = errors.New("athlete_id, access_token and refresh_token required")
)

func (s *Service) LinkStrava(ctx context.Context, playerID string, req LinkRequest) error {
	if req.AthleteID == "" || req.AccessToken == "" || req.RefreshToken == "" {
		return ErrInvalidLink
	}
	return s.store.LinkStrava(ctx, playerID, s.namespace, save.Credential{
		AthleteID:    req.AthleteID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
	})
}

// Unlink handles a deauthorization: the mapping and stored tokens go away.
func (s *Service) Unlink(ctx context.Context, athleteID string) error {
	playerID, err := s.store.Unlink(ctx, athleteID)
	if err != nil {
		return err
	}
	log.Printf("strava athlete %s unlinked from player %s", athleteID, playerID)
	return nil
}

func (s *Service) refresher() save.RefreshFunc {
	return func(ctx context.Context, c save.Credential) (save.Credential, error) {
		tok, err := s.strava.Refresh(ctx, c.RefreshToken)
		if err != nil {
			return save.Credential{}, err
		}
		return save.Credential{
			AthleteID:    c.AthleteID,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    tok.ExpiresAt,
		}, nil
	}
}

// withToken calls fn with a valid access token, refreshing it once more if
// Strava rejects the one on file.
func (s *Service) withToken(ctx context.Context, playerID string, fn func(accessToken string) error) error {
	if s.strava == nil {
		return ErrStravaUnavailable
	}
	cred, err := s.store.RefreshCredential(ctx, playerID, s.clock.Now(), false, s.refresher())
	if err != nil {
		return err
	}
	err = fn(cred.AccessToken)
	if !errors.Is(err, strava.ErrUnauthorized) {
		return err
	}
	cred, err = s.store.RefreshCredential(ctx, playerID, s.clock.Now(), true, s.refresher())
	if err != nil {
		return err
	}
	return fn(cred.AccessToken)
}

// SyncActivity ingests one Strava activity for the linked player. Runs are
// routed to the active quest when one is in progress.
func (s *Service) SyncActivity(ctx context.Context, athleteID, activityID string) (SyncResult, error) {
	mapping, err := s.store.ResolveAthlete(ctx, athleteID)
	if err != nil {
		return SyncResult{}, err
	}
	res := SyncResult{PlayerID: mapping.PlayerID}

	known, err := s.store.HasStravaRun(ctx, mapping.PlayerID, activityID)
	if err != nil {
		return res, err
	}
	if known {
		res.Status = SyncDuplicate
		return res, nil
	}

	var activity strava.Activity
	err = s.withToken(ctx, mapping.PlayerID, func(token string) error {
		var err error
		activity, err = s.strava.Activity(ctx, token, activityID)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("fetch activity %s: %w", activityID, err)
	}
	if !activity.IsRun() {
		res.Status = SyncSkipped
		return res, nil
	}

	run, err := s.ingest(ctx, mapping.PlayerID, pursuit.RunInput{
		Km:            activity.Km(),
		Notes:         activity.Name,
		Source:        pursuit.SourceStrava,
		StravaID:      activityID,
		QuestDirected: true,
		Date:          activityDate(activity),
	}, false)
	if err != nil {
		return res, err
	}
	res.Run = run
	res.Status = SyncIngested
	if run.Outcome.Duplicate {
		res.Status = SyncDuplicate
	}
	return res, nil
}

// Backfill pulls the latest activities and ingests every run not seen yet.
// Backfilled runs always count toward survival.
func (s *Service) Backfill(ctx context.Context, playerID string) (BackfillResult, error) {
	var activities []strava.Activity
	err := s.withToken(ctx, playerID, func(token string) error {
		var err error
		activities, err = s.strava.RecentActivities(ctx, token, strava.RecentLimit)
		return err
	})
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list activities: %w", err)
	}

	var res BackfillResult
	// oldest first, so history and speed evolve in the order the runs happened
	for i := len(activities) - 1; i >= 0; i-- {
		a := activities[i]
		if !a.IsRun() || !pursuit.ValidDistance(a.Km()) {
			res.Skipped++
			continue
		}
		run, err := s.ingest(ctx, playerID, pursuit.RunInput{
			Km:       a.Km(),
			Notes:    a.Name,
			Source:   pursuit.SourceStravaBackfill,
			StravaID: fmt.Sprint(a.ID),
			Date:     activityDate(a),
		}, true)
		if err != nil {
			return res, err
		}
		if run.Outcome.Duplicate {
			res.Duplicates++
			continue
		}
		res.Imported++
		res.View = run.View
	}

	if res.Imported == 0 {
		v, err := s.Status(ctx, playerID)
		if err != nil {
			return res, err
		}
		res.View = v
	}
	return res, nil
}

func activityDate(a strava.Activity) time.Time {
	if a.StartDate.IsZero() {
		return time.Time{}
	}
	return a.StartDate.UTC()
}
