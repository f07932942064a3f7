package pursuit

import (
	"math"
	"time"

	"backend-theentity/internal/config"
)

type SpeedChange struct {
	Speed float64 `json:"speed"`
	Day   int     `json:"day"`
}

// RecalculateSpeed rederives the pursuer speed from the player's average daily
// distance. It returns false when adaptive mode is off or the cadence has not
// elapsed since the last recalculation.
func RecalculateSpeed(s Save, b config.Balance, now time.Time) (SpeedChange, bool) {
	if !s.AdaptiveMode || !s.OnboardingComplete {
		return SpeedChange{}, false
	}
	days := DaysSince(s.StartDate, now)
	if days < b.SpeedCadenceDays || days-s.LastSpeedUpdateDay < b.SpeedCadenceDays {
		return SpeedChange{}, false
	}

	avgDaily := s.TotalKmRun / float64(max(1, days))
	speed := math.Max(b.MinSpeed, round2(avgDaily*b.Multiplier(string(s.Difficulty))))
	return SpeedChange{Speed: speed, Day: days}, true
}

func (s *Save) ApplySpeed(c SpeedChange) {
	s.EntitySpeed = c.Speed
	s.LastSpeedUpdateDay = c.Day
}
