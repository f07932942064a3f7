package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"backend-theentity/internal/progression"
	"backend-theentity/internal/save"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const markerTTL = 24 * time.Hour

var ErrVerificationFailed = errors.New("webhook verification failed")

// Syncer is the part of the progression service the webhook drives.
type Syncer interface {
	SyncActivity(ctx context.Context, athleteID, activityID string) (progression.SyncResult, error)
	Unlink(ctx context.Context, athleteID string) error
}

type Service struct {
	sync        Syncer
	redis       *redis.Client
	verifyToken string
	tracer      trace.Tracer
}

// NewService builds the webhook intake. A nil Redis client disables the
// dedupe marker; the run table stays the source of truth either way.
func NewService(sync Syncer, redisClient *redis.Client, verifyToken string) *Service {
	return &Service{
		sync:        sync,
		redis:       redisClient,
		verifyToken: verifyToken,
		tracer:      otel.Tracer("backend-theentity/internal/webhook"),
	}
}

// Verify answers the subscription handshake.
func (s *Service) Verify(mode, token, challenge string) (VerifyResponse, error) {
	if mode != "subscribe" || s.verifyToken == "" || token != s.verifyToken || challenge == "" {
		return VerifyResponse{}, ErrVerificationFailed
	}
	return VerifyResponse{Challenge: challenge}, nil
}

// Handle processes one event. Deauthorization and activity creation are
// evaluated independently so a single payload can trigger both.
func (s *Service) Handle(ctx context.Context, e Event) error {
	ctx, span := s.tracer.Start(ctx, "webhook.Handle", trace.WithAttributes(
		attribute.String("strava.object_type", e.ObjectType),
		attribute.String("strava.aspect_type", e.AspectType),
		attribute.Int64("strava.object_id", e.ObjectID),
		attribute.Int64("strava.owner_id", e.OwnerID),
	))
	defer span.End()

	var errs []error
	if e.isDeauthorization() {
		if err := s.sync.Unlink(ctx, e.athleteID()); err != nil && !errors.Is(err, save.ErrMappingNotFound) {
			errs = append(errs, fmt.Errorf("deauthorize athlete %d: %w", e.OwnerID, err))
		}
	}
	if e.isActivityCreate() {
		if err := s.ingest(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Service) ingest(ctx context.Context, e Event) error {
	fresh, err := s.mark(ctx, e.activityID())
	if err != nil {
		log.Printf("webhook marker unavailable for activity %d: %v", e.ObjectID, err)
		fresh = true
	}
	if !fresh {
		return nil
	}

	res, err := s.sync.SyncActivity(ctx, e.athleteID(), e.activityID())
	if err != nil {
		// Release the claim so a redelivery can retry.
		s.unmark(ctx, e.activityID())
		if errors.Is(err, save.ErrMappingNotFound) {
			return nil
		}
		return fmt.Errorf("sync activity %d: %w", e.ObjectID, err)
	}
	log.Printf("strava activity %d for player %s: %s", e.ObjectID, res.PlayerID, res.Status)
	return nil
}

// mark claims the activity for this delivery; false means another delivery
// already holds it.
func (s *Service) mark(ctx context.Context, activityID string) (bool, error) {
	if s.redis == nil {
		return true, nil
	}
	return s.redis.SetNX(ctx, markerKey(activityID), 1, markerTTL).Result()
}

func (s *Service) unmark(ctx context.Context, activityID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, markerKey(activityID)).Err(); err != nil {
		log.Printf("webhook marker cleanup failed for activity %s: %v", activityID, err)
	}
}

func markerKey(activityID string) string {
	return "strava:activity:" + activityID
}
