package progression

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"backend-theentity/internal/config"
	"backend-theentity/internal/pursuit"
	"backend-theentity/internal/save"
	"backend-theentity/internal/strava"
	"backend-theentity/internal/stream"
)

const EventSaveChanged = "save.changed"

var ErrPurchaseNotApplicable = errors.New("purchase can no longer be applied")

// StravaAPI is the part of the Strava client the service calls.
type StravaAPI interface {
	Activity(ctx context.Context, accessToken, id string) (strava.Activity, error)
	RecentActivities(ctx context.Context, accessToken string, limit int) ([]strava.Activity, error)
	Refresh(ctx context.Context, refreshToken string) (strava.Token, error)
}

type Publisher interface {
	Publish(ctx context.Context, event stream.Event)
}

type Deps struct {
	Store     *save.Store
	Strava    StravaAPI
	Events    Publisher
	Balance   config.Balance
	Clock     pursuit.Clock
	Namespace string
}

// Service runs every player-facing progression operation. Each one is a
// single store mutation around the pure pursuit engine.
type Service struct {
	store     *save.Store
	strava    StravaAPI
	events    Publisher
	balance   config.Balance
	clock     pursuit.Clock
	namespace string
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = pursuit.RealClock{}
	}
	return &Service{
		store:     d.Store,
		strava:    d.Strava,
		events:    d.Events,
		balance:   d.Balance,
		clock:     d.Clock,
		namespace: d.Namespace,
	}
}

func (s *Service) view(sv pursuit.Save, now time.Time) View {
	return View{Save: sv, Projection: pursuit.Project(sv, s.balance, now)}
}

func (s *Service) publish(ctx context.Context, v View) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, stream.Event{Type: EventSaveChanged, PlayerID: v.Save.PlayerID, Data: v})
}

// mutate runs fn after applying any due tick, publishes the result and
// returns the fresh view.
func (s *Service) mutate(ctx context.Context, playerID string, fn func(m *save.Mutation, now time.Time) error) (View, error) {
	return s.write(ctx, playerID, false, fn)
}

// write runs fn and the due tick in one mutation. With tickLast the tick is
// evaluated on the save fn produced, so a run's own speed recalculation sees
// the updated distance instead of being pre-empted by the cadence gate.
func (s *Service) write(ctx context.Context, playerID string, tickLast bool, fn func(m *save.Mutation, now time.Time) error) (View, error) {
	now := s.clock.Now()
	tick := func(m *save.Mutation) error {
		return m.Tick(pursuit.Tick(m.Save(), s.balance, now))
	}
	saved, err := s.store.Mutate(ctx, playerID, func(m *save.Mutation) error {
		if !tickLast {
			if err := tick(m); err != nil {
				return err
			}
		}
		if err := fn(m, now); err != nil {
			return err
		}
		if tickLast {
			return tick(m)
		}
		return nil
	})
	if err != nil {
		return View{}, err
	}
	v := s.view(saved, now)
	s.publish(ctx, v)
	return v, nil
}

func requireOnboarded(m *save.Mutation) error {
	if !m.Save().OnboardingComplete {
		return pursuit.ErrNotOnboarded
	}
	return nil
}

// Start begins a pursuit, or restarts one. A zero duration restarts with the
// choices of the existing save.
func (s *Service) Start(ctx context.Context, playerID string, opts pursuit.StartOptions) (View, error) {
	if opts.DurationDays == 0 {
		current, err := s.store.Get(ctx, playerID)
		if errors.Is(err, save.ErrNotFound) {
			return View{}, pursuit.ErrInvalidDuration
		}
		if err != nil {
			return View{}, err
		}
		opts = pursuit.StartOptions{
			DurationDays: current.DurationDays,
			Difficulty:   current.Difficulty,
			AdaptiveMode: current.AdaptiveMode,
		}
	}

	now := s.clock.Now()
	fresh, err := pursuit.NewSave(playerID, opts, s.balance, now)
	if err != nil {
		return View{}, err
	}
	saved, err := s.store.Reset(ctx, fresh, s.namespace)
	if err != nil {
		return View{}, err
	}
	v := s.view(saved, now)
	s.publish(ctx, v)
	return v, nil
}

// Status returns the player's view, persisting any speed change or quest
// offer that came due since the last write.
func (s *Service) Status(ctx context.Context, playerID string) (View, error) {
	v, _, err := s.tickIfDue(ctx, playerID)
	return v, err
}

// tickIfDue reads the save without locking and only opens a mutation when a
// tick has something to write.
func (s *Service) tickIfDue(ctx context.Context, playerID string) (View, bool, error) {
	now := s.clock.Now()
	current, err := s.store.Get(ctx, playerID)
	if err != nil {
		return View{}, false, err
	}
	if pursuit.Tick(current, s.balance, now).Empty() {
		return s.view(current, now), false, nil
	}
	v, err := s.mutate(ctx, playerID, func(*save.Mutation, time.Time) error { return nil })
	if err != nil {
		return View{}, false, err
	}
	return v, true, nil
}

func (s *Service) LogRun(ctx context.Context, playerID string, req RunRequest) (RunResult, error) {
	if !pursuit.ValidDistance(req.Km) {
		return RunResult{}, pursuit.ErrInvalidDistance
	}
	return s.ingest(ctx, playerID, pursuit.RunInput{
		Km:            req.Km,
		Notes:         req.Notes,
		Source:        pursuit.SourceManual,
		QuestDirected: req.Quest,
	}, true)
}

// ingest is the one path every run takes into a save.
func (s *Service) ingest(ctx context.Context, playerID string, in pursuit.RunInput, onboarded bool) (RunResult, error) {
	var out pursuit.Outcome
	v, err := s.write(ctx, playerID, true, func(m *save.Mutation, now time.Time) error {
		if onboarded {
			if err := requireOnboarded(m); err != nil {
				return err
			}
		}
		var err error
		out, err = pursuit.Ingest(m.Save(), in, s.balance, now)
		if err != nil {
			return err
		}
		return m.Ingest(out)
	})
	if errors.Is(err, save.ErrDuplicateRun) {
		return RunResult{Outcome: pursuit.Outcome{Duplicate: true}}, nil
	}
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{View: v, Outcome: out}, nil
}

func (s *Service) DeleteRun(ctx context.Context, playerID, runID string) (View, error) {
	return s.mutate(ctx, playerID, func(m *save.Mutation, _ time.Time) error {
		run, err := pursuit.DeleteRun(m.Save(), runID)
		if err != nil {
			return err
		}
		return m.DeleteRun(run)
	})
}

func (s *Service) ConvertRun(ctx context.Context, playerID, runID string) (ConvertResult, error) {
	var conv pursuit.Conversion
	v, err := s.mutate(ctx, playerID, func(m *save.Mutation, now time.Time) error {
		var err error
		conv, err = pursuit.ConvertRun(m.Save(), runID, now)
		if err != nil {
			return err
		}
		return m.Convert(conv)
	})
	if err != nil {
		return ConvertResult{}, err
	}
	return ConvertResult{View: v, Conversion: conv}, nil
}

func (s *Service) AcceptQuest(ctx context.Context, playerID string) (View, error) {
	return s.mutate(ctx, playerID, func(m *save.Mutation, _ time.Time) error {
		q, err := pursuit.AcceptQuest(m.Save())
		if err != nil {
			return err
		}
		return m.Quest(q)
	})
}

func (s *Service) DiscardQuest(ctx context.Context, playerID string) (View, error) {
	return s.mutate(ctx, playerID, func(m *save.Mutation, _ time.Time) error {
		q, err := pursuit.DiscardQuest(m.Save())
		if err != nil {
			return err
		}
		return m.Quest(q)
	})
}

// UseConsumable applies a free or crafted use right away. When the player
// must pay, it records a purchase awaiting confirmation instead.
func (s *Service) UseConsumable(ctx context.Context, playerID string, item pursuit.Consumable) (ConsumableResult, error) {
	if !item.Valid() {
		return ConsumableResult{}, pursuit.ErrUnknownConsumable
	}

	var effect any
	v, err := s.write(ctx, playerID, item == pursuit.ConsumableBoost, func(m *save.Mutation, now time.Time) error {
		var err error
		effect, err = s.applyConsumable(m, item, false, now)
		return err
	})
	if errors.Is(err, pursuit.ErrPaymentRequired) {
		p, err := s.store.CreatePurchase(ctx, playerID, item)
		if err != nil {
			return ConsumableResult{}, err
		}
		log.Printf("purchase %s awaiting payment: player=%s item=%s", p.ID, playerID, item)
		return ConsumableResult{Item: item, Purchase: &p}, nil
	}
	if err != nil {
		return ConsumableResult{}, err
	}
	return ConsumableResult{Item: item, View: &v, Effect: effect}, nil
}

// ConfirmPurchase applies a paid consumable once. Confirming an applied
// purchase again returns the current view without side effects.
func (s *Service) ConfirmPurchase(ctx context.Context, purchaseID string) (ConsumableResult, error) {
	p, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return ConsumableResult{}, err
	}

	var effect any
	v, err := s.write(ctx, p.PlayerID, p.Item == pursuit.ConsumableBoost, func(m *save.Mutation, now time.Time) error {
		locked, err := m.LockPurchase(purchaseID)
		if err != nil {
			return err
		}
		p = locked
		if locked.Status == save.PurchaseApplied {
			return nil
		}
		effect, err = s.applyConsumable(m, locked.Item, true, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPurchaseNotApplicable, err)
		}
		return m.MarkApplied(locked.ID)
	})
	if err != nil {
		return ConsumableResult{}, err
	}
	if effect != nil {
		p.Status = save.PurchaseApplied
	}
	return ConsumableResult{Item: p.Item, View: &v, Effect: effect, Purchase: &p}, nil
}

func (s *Service) applyConsumable(m *save.Mutation, item pursuit.Consumable, paid bool, now time.Time) (any, error) {
	switch item {
	case pursuit.ConsumableEMP:
		out, err := pursuit.UseEMP(m.Save(), paid, s.balance, now)
		if err != nil {
			return nil, err
		}
		return out, m.EMP(out)
	case pursuit.ConsumableBoost:
		out, err := pursuit.UseBoost(m.Save(), paid, s.balance, now)
		if err != nil {
			return nil, err
		}
		return out, m.Boost(out)
	case pursuit.ConsumableContinue:
		out, err := pursuit.UseContinue(m.Save(), paid, s.balance, now)
		if err != nil {
			return nil, err
		}
		return out, m.Continue(out)
	}
	return nil, pursuit.ErrUnknownConsumable
}
