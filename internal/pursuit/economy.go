package pursuit

import (
	"time"

	"backend-theentity/internal/config"
)

type Consumable string

const (
	ConsumableEMP      Consumable = "emp"
	ConsumableBoost    Consumable = "boost"
	ConsumableContinue Consumable = "continue"
)

func (c Consumable) Valid() bool {
	switch c {
	case ConsumableEMP, ConsumableBoost, ConsumableContinue:
		return true
	}
	return false
}

type EMPOutcome struct {
	Crafted     bool      `json:"crafted"`
	Free        bool      `json:"free"`
	PausedHours float64   `json:"paused_hours"`
	UsedAt      time.Time `json:"used_at"`
}

// UseEMP freezes the pursuer. A full part kit is consumed first; otherwise the
// one free use is claimed; otherwise the caller must pass paid. Any applied use
// spends the free allowance.
func UseEMP(s Save, paid bool, b config.Balance, now time.Time) (EMPOutcome, error) {
	if !s.OnboardingComplete {
		return EMPOutcome{}, ErrNotOnboarded
	}
	out := EMPOutcome{PausedHours: b.EMPHours, UsedAt: now}
	switch {
	case s.Inventory.HasKit():
		out.Crafted = true
	case !s.FreeEMPClaimed:
		out.Free = true
	case !paid:
		return EMPOutcome{}, ErrPaymentRequired
	}
	return out, nil
}

func (s *Save) ApplyEMP(o EMPOutcome) {
	if o.Crafted {
		s.Inventory.Battery--
		s.Inventory.Emitter--
		s.Inventory.Casing--
	}
	s.FreeEMPClaimed = true
	s.TotalPausedHours += o.PausedHours
	used := o.UsedAt
	s.LastEMPUsage = &used
	s.EMPUsageCount++
}

type BoostOutcome struct {
	Free    bool    `json:"free"`
	TodayKm float64 `json:"today_km"`
	Amount  float64 `json:"amount"`
	Ingest  Outcome `json:"ingest"`
}

// UseBoost injects a share of today's distance as a synthetic run.
func UseBoost(s Save, paid bool, b config.Balance, now time.Time) (BoostOutcome, error) {
	if !s.OnboardingComplete {
		return BoostOutcome{}, ErrNotOnboarded
	}
	today := TodayKm(s, now)
	amount := round2(today * b.BoostRatio)
	if today <= 0 || amount <= 0 {
		return BoostOutcome{}, ErrNoDistanceToday
	}

	free := !s.FreeBoostClaimed
	if !free && !paid {
		return BoostOutcome{}, ErrPaymentRequired
	}

	ingest, err := Ingest(s, RunInput{
		Km:     amount,
		Notes:  "Nitrous Boost",
		Source: SourceBoost,
	}, b, now)
	if err != nil {
		return BoostOutcome{}, err
	}
	return BoostOutcome{Free: free, TodayKm: today, Amount: amount, Ingest: ingest}, nil
}

func (s *Save) ApplyBoost(o BoostOutcome) {
	s.Apply(o.Ingest)
	if o.Free {
		s.FreeBoostClaimed = true
	}
	s.BoostUsageCount++
}

// TodayKm sums real (non-boost) distance logged on now's calendar day.
func TodayKm(s Save, now time.Time) float64 {
	y, m, d := now.Date()
	total := 0.0
	for _, r := range s.RunHistory {
		if r.Type == RunBoost {
			continue
		}
		ry, rm, rd := r.Date.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			total += r.Km
		}
	}
	return total
}

type ContinueOutcome struct {
	PausedHours float64 `json:"paused_hours"`
}

// UseContinue rewinds the pursuer after a catch. It is never free.
func UseContinue(s Save, paid bool, b config.Balance, now time.Time) (ContinueOutcome, error) {
	if Project(s, b, now).Phase != PhaseCaught {
		return ContinueOutcome{}, ErrNotCaught
	}
	if !paid {
		return ContinueOutcome{}, ErrPaymentRequired
	}
	return ContinueOutcome{PausedHours: b.ContinueHours}, nil
}

func (s *Save) ApplyContinue(o ContinueOutcome) {
	s.TotalPausedHours += o.PausedHours
	s.ContinuesUsed++
}
