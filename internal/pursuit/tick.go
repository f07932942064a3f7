package pursuit

import (
	"time"

	"backend-theentity/internal/config"
)

// TickOutcome holds the time-driven changes due for a save.
type TickOutcome struct {
	Speed    *SpeedChange `json:"speed,omitempty"`
	Offer    *Quest       `json:"offer,omitempty"`
	OfferDay int          `json:"offer_day,omitempty"`
}

func (t TickOutcome) Empty() bool {
	return t.Speed == nil && t.Offer == nil
}

// Tick evaluates the day-boundary rules: adaptive speed and quest offers.
// Finished pursuits are left alone.
func Tick(s Save, b config.Balance, now time.Time) TickOutcome {
	var out TickOutcome
	if !s.OnboardingComplete || Project(s, b, now).Phase.Terminal() {
		return out
	}
	if change, ok := RecalculateSpeed(s, b, now); ok {
		out.Speed = &change
		s.ApplySpeed(change)
	}
	if q, day, ok := OfferQuest(s, b, now); ok {
		out.Offer = &q
		out.OfferDay = day
	}
	return out
}

func (s *Save) ApplyTick(t TickOutcome) {
	if t.Speed != nil {
		s.ApplySpeed(*t.Speed)
	}
	if t.Offer != nil {
		s.ApplyOffer(*t.Offer, t.OfferDay)
	}
}
