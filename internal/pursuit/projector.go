package pursuit

import (
	"math"
	"time"

	"backend-theentity/internal/config"
)

// Phase is the explicit pursuit state derived from a save and a point in time.
//
//	inactive -> dormant (grace) -> pursuing -> caught | victorious
type Phase string

const (
	PhaseInactive   Phase = "inactive"
	PhaseDormant    Phase = "dormant"
	PhasePursuing   Phase = "pursuing"
	PhaseCaught     Phase = "caught"
	PhaseVictorious Phase = "victorious"
)

// Terminal reports whether the phase ends the run until a restart or continue.
func (p Phase) Terminal() bool {
	return p == PhaseCaught || p == PhaseVictorious
}

type Projection struct {
	Phase          Phase   `json:"phase"`
	ElapsedHours   float64 `json:"elapsed_hours"`
	ActiveHours    float64 `json:"active_hours"`
	DaysSinceStart int     `json:"days_since_start"`
	DaysRemaining  int     `json:"days_remaining"`
	PursuerKm      float64 `json:"pursuer_km"`
	Gap            float64 `json:"gap_km"`
	IsGracePeriod  bool    `json:"is_grace_period"`
	IsCaught       bool    `json:"is_caught"`
	IsVictory      bool    `json:"is_victory"`
	ArmoryUnlocked bool    `json:"armory_unlocked"`
}

// Project computes where the pursuer is at now. It reads nothing but the save
// and the balance, so any client or server derives the same answer.
func Project(s Save, b config.Balance, now time.Time) Projection {
	if !s.OnboardingComplete {
		return Projection{Phase: PhaseInactive}
	}

	elapsed := now.Sub(s.StartDate).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	active := math.Max(0, elapsed-b.GraceHours-s.TotalPausedHours)
	pursuer := active * (s.EntitySpeed / 24)
	gap := s.TotalKmRun - pursuer
	days := DaysSince(s.StartDate, now)

	p := Projection{
		ElapsedHours:   elapsed,
		ActiveHours:    active,
		DaysSinceStart: days,
		PursuerKm:      pursuer,
		Gap:            gap,
		IsGracePeriod:  elapsed < b.GraceHours,
	}
	p.IsCaught = gap <= 0 && !p.IsGracePeriod
	p.IsVictory = days >= s.DurationDays && !p.IsCaught
	p.ArmoryUnlocked = p.IsVictory
	if remaining := s.DurationDays - days; remaining > 0 {
		p.DaysRemaining = remaining
	}

	switch {
	case p.IsCaught:
		p.Phase = PhaseCaught
	case p.IsVictory:
		p.Phase = PhaseVictorious
	case p.IsGracePeriod:
		p.Phase = PhaseDormant
	default:
		p.Phase = PhasePursuing
	}
	return p
}

// DaysSince returns whole days elapsed since start, never negative.
func DaysSince(start, now time.Time) int {
	d := int(math.Floor(now.Sub(start).Hours() / 24))
	if d < 0 {
		return 0
	}
	return d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
