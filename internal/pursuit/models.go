package pursuit

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Part is a crafting component awarded by quests. Three of a kind make an EMP.
type Part string

const (
	PartBattery Part = "battery"
	PartEmitter Part = "emitter"
	PartCasing  Part = "casing"
)

// Parts lists every part in reward rotation order.
var Parts = []Part{PartBattery, PartEmitter, PartCasing}

func (p Part) Valid() bool {
	switch p {
	case PartBattery, PartEmitter, PartCasing:
		return true
	}
	return false
}

type Inventory struct {
	Battery int `json:"battery"`
	Emitter int `json:"emitter"`
	Casing  int `json:"casing"`
}

// Add grants n of part. Unknown parts are ignored and reported as false.
func (inv *Inventory) Add(part Part, n int) bool {
	switch part {
	case PartBattery:
		inv.Battery += n
	case PartEmitter:
		inv.Emitter += n
	case PartCasing:
		inv.Casing += n
	default:
		return false
	}
	return true
}

func (inv Inventory) Count(part Part) int {
	switch part {
	case PartBattery:
		return inv.Battery
	case PartEmitter:
		return inv.Emitter
	case PartCasing:
		return inv.Casing
	}
	return 0
}

// HasKit reports whether one of each part is available.
func (inv Inventory) HasKit() bool {
	return inv.Battery > 0 && inv.Emitter > 0 && inv.Casing > 0
}

type RunType string

const (
	RunSurvival      RunType = "survival"
	RunQuest         RunType = "quest"
	RunQuestPartial  RunType = "quest_partial"
	RunQuestComplete RunType = "quest_complete"
	RunBoost         RunType = "boost"
)

type Source string

const (
	SourceManual         Source = "manual"
	SourceStrava         Source = "strava"
	SourceStravaBackfill Source = "strava_backfill"
	SourceBoost          Source = "boost"
)

// Run is one entry of the run history. Credited is the part of Km that was
// added to the survival total.
type Run struct {
	ID       string    `json:"id"`
	Date     time.Time `json:"date"`
	Km       float64   `json:"km"`
	Credited float64   `json:"credited_km"`
	Notes    string    `json:"notes"`
	Type     RunType   `json:"type"`
	Source   Source    `json:"source"`
	StravaID string    `json:"strava_id,omitempty"`
}

type QuestStatus string

const (
	QuestAvailable QuestStatus = "available"
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestDiscarded QuestStatus = "discarded"
)

type Quest struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Distance   float64     `json:"distance"`
	Progress   float64     `json:"progress"`
	RewardPart Part        `json:"reward_part"`
	Status     QuestStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (q Quest) Remaining() float64 {
	if q.Progress >= q.Distance {
		return 0
	}
	return round2(q.Distance - q.Progress)
}

type Badge struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Date  time.Time `json:"date"`
}

// Save is the per-player progression record.
type Save struct {
	PlayerID               string     `json:"player_id"`
	StartDate              time.Time  `json:"start_date"`
	DurationDays           int        `json:"duration"`
	EntitySpeed            float64    `json:"entity_speed"`
	LastSpeedUpdateDay     int        `json:"last_speed_update_day"`
	AdaptiveMode           bool       `json:"adaptive_mode"`
	Difficulty             Difficulty `json:"difficulty"`
	TotalKmRun             float64    `json:"total_km_run"`
	TotalPausedHours       float64    `json:"total_paused_hours"`
	RunHistory             []Run      `json:"run_history"`
	ActiveQuest            *Quest     `json:"active_quest"`
	Inventory              Inventory  `json:"inventory"`
	Badges                 []Badge    `json:"badges"`
	EMPUsageCount          int        `json:"emp_usage_count"`
	BoostUsageCount        int        `json:"boost_usage_count"`
	FreeEMPClaimed         bool       `json:"free_emp_claimed"`
	FreeBoostClaimed       bool       `json:"free_boost_claimed"`
	ContinuesUsed          int        `json:"continues_used"`
	LastEMPUsage           *time.Time `json:"last_emp_usage,omitempty"`
	LastQuestGenerationDay int        `json:"last_quest_generation_day"`
	OnboardingComplete     bool       `json:"onboarding_complete"`
	Version                int64      `json:"version"`
}

// HasStravaRun reports whether the external activity id was already ingested.
func (s Save) HasStravaRun(stravaID string) bool {
	if stravaID == "" {
		return false
	}
	for _, r := range s.RunHistory {
		if r.StravaID == stravaID {
			return true
		}
	}
	return false
}

// FindRun returns the index of a run in the history, or -1.
func (s Save) FindRun(id string) int {
	for i, r := range s.RunHistory {
		if r.ID == id {
			return i
		}
	}
	return -1
}
