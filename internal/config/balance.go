package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Balance holds the tunable numbers of the pursuit game.
type Balance struct {
	GraceHours       float64            `yaml:"grace_hours" json:"grace_hours"`
	MinSpeed         float64            `yaml:"min_speed" json:"min_speed"`
	StartingSpeed    float64            `yaml:"starting_speed" json:"starting_speed"`
	SpeedCadenceDays int                `yaml:"speed_cadence_days" json:"speed_cadence_days"`
	Multipliers      map[string]float64 `yaml:"difficulty_multipliers" json:"difficulty_multipliers"`

	EMPHours      float64 `yaml:"emp_hours" json:"emp_hours"`
	ContinueHours float64 `yaml:"continue_hours" json:"continue_hours"`
	BoostRatio    float64 `yaml:"boost_ratio" json:"boost_ratio"`

	QuestCadenceDays int     `yaml:"quest_cadence_days" json:"quest_cadence_days"`
	QuestSpeedFactor float64 `yaml:"quest_speed_factor" json:"quest_speed_factor"`
	QuestMinKm       float64 `yaml:"quest_min_km" json:"quest_min_km"`
	QuestMaxKm       float64 `yaml:"quest_max_km" json:"quest_max_km"`
}

// DefaultBalance returns the stock tuning.
func DefaultBalance() Balance {
	return Balance{
		GraceHours:       24,
		MinSpeed:         3.0,
		StartingSpeed:    3.0,
		SpeedCadenceDays: 4,
		Multipliers: map[string]float64{
			"easy":   0.85,
			"medium": 0.90,
			"hard":   0.95,
		},
		EMPHours:         25,
		ContinueHours:    48,
		BoostRatio:       0.15,
		QuestCadenceDays: 5,
		QuestSpeedFactor: 1.5,
		QuestMinKm:       3,
		QuestMaxKm:       15,
	}
}

// Multiplier returns the pace multiplier for a difficulty, falling back to medium.
func (b Balance) Multiplier(difficulty string) float64 {
	if m, ok := b.Multipliers[difficulty]; ok {
		return m
	}
	return b.Multipliers["medium"]
}

// LoadBalance overlays the YAML file at path onto DefaultBalance. An empty
// path yields the defaults.
func LoadBalance(path string) (Balance, error) {
	cfg := DefaultBalance()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Balance{}, fmt.Errorf("read balance file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Balance{}, fmt.Errorf("parse balance file: %w", err)
	}
	if len(cfg.Multipliers) == 0 {
		cfg.Multipliers = DefaultBalance().Multipliers
	}
	return cfg, nil
}
