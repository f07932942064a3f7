package pursuit

import (
	"time"

	"backend-theentity/internal/config"
)

// ValidDurations are the supported pursuit lengths in days.
var ValidDurations = []int{30, 90, 365}

type StartOptions struct {
	DurationDays int        `json:"duration"`
	Difficulty   Difficulty `json:"difficulty"`
	AdaptiveMode bool       `json:"adaptive_mode"`
}

func (o StartOptions) Validate() error {
	valid := false
	for _, d := range ValidDurations {
		if o.DurationDays == d {
			valid = true
		}
	}
	if !valid {
		return ErrInvalidDuration
	}
	if !o.Difficulty.Valid() {
		return ErrInvalidDifficulty
	}
	return nil
}

// NewSave returns a fresh save starting the pursuit at now. Restarting a
// finished pursuit uses the same defaults.
func NewSave(playerID string, opts StartOptions, b config.Balance, now time.Time) (Save, error) {
	if err := opts.Validate(); err != nil {
		return Save{}, err
	}
	return Save{
		PlayerID:           playerID,
		StartDate:          now,
		DurationDays:       opts.DurationDays,
		EntitySpeed:        b.StartingSpeed,
		AdaptiveMode:       opts.AdaptiveMode,
		Difficulty:         opts.Difficulty,
		RunHistory:         []Run{},
		Badges:             []Badge{},
		OnboardingComplete: true,
		Version:            1,
	}, nil
}
