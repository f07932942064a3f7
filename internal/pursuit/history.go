package pursuit

import (
	"math"
	"time"
)

// DeleteRun looks up a run the player wants removed.
func DeleteRun(s Save, runID string) (Run, error) {
	i := s.FindRun(runID)
	if i < 0 {
		return Run{}, ErrRunNotFound
	}
	return s.RunHistory[i], nil
}

// ApplyDelete removes the run and takes back whatever it credited. Quest
// progress and rewards already granted stay.
func (s *Save) ApplyDelete(r Run) {
	i := s.FindRun(r.ID)
	if i < 0 {
		return
	}
	s.RunHistory = append(s.RunHistory[:i:i], s.RunHistory[i+1:]...)
	s.TotalKmRun = math.Max(0, s.TotalKmRun-r.Credited)
}

// Conversion re-routes an already logged survival run to the active quest.
type Conversion struct {
	Outcome
	PreviousCredited float64 `json:"previous_credited_km"`
}

// KmDelta is the change to the survival total.
func (c Conversion) KmDelta() float64 {
	return c.Run.Credited - c.PreviousCredited
}

func ConvertRun(s Save, runID string, now time.Time) (Conversion, error) {
	i := s.FindRun(runID)
	if i < 0 {
		return Conversion{}, ErrRunNotFound
	}
	run := s.RunHistory[i]
	if run.Type != RunSurvival {
		return Conversion{}, ErrRunNotConvertible
	}
	if s.ActiveQuest == nil || s.ActiveQuest.Status != QuestActive {
		return Conversion{}, ErrNoQuest
	}

	prev := run.Credited
	out := routeToQuest(*s.ActiveQuest, &run, now)
	out.Run = run
	return Conversion{Outcome: out, PreviousCredited: prev}, nil
}

func (s *Save) ApplyConversion(c Conversion) {
	i := s.FindRun(c.Run.ID)
	if i < 0 {
		return
	}
	s.RunHistory[i] = c.Run
	s.TotalKmRun = math.Max(0, s.TotalKmRun+c.KmDelta())
	s.applyQuest(c.Quest)
	if c.Reward != "" {
		s.Inventory.Add(c.Reward, 1)
	}
	if c.Badge != nil {
		s.Badges = append(s.Badges, *c.Badge)
	}
}
