package pursuit

import (
	"fmt"
	"math"
	"time"

	"backend-theentity/internal/config"

	"github.com/google/uuid"
)

// RunInput is a candidate run from any entry point: manual log, webhook,
// backfill or a boost injection.
type RunInput struct {
	Km            float64
	Notes         string
	Source        Source
	StravaID      string
	QuestDirected bool
	Date          time.Time
}

// Outcome describes everything one ingestion changes. Apply replays it on an
// in-memory save; the store replays it as SQL deltas.
type Outcome struct {
	Duplicate bool         `json:"duplicate"`
	Run       Run          `json:"run"`
	Quest     *Quest       `json:"quest,omitempty"`
	Reward    Part         `json:"reward,omitempty"`
	Badge     *Badge       `json:"badge,omitempty"`
	Speed     *SpeedChange `json:"speed,omitempty"`
}

// QuestCompleted reports whether this outcome finished the active quest.
func (o Outcome) QuestCompleted() bool {
	return o.Quest != nil && o.Quest.Status == QuestCompleted
}

func ValidDistance(km float64) bool {
	return km > 0 && !math.IsNaN(km) && !math.IsInf(km, 0)
}

// Ingest is the single ingestion path for every run. A run carrying an
// already-seen StravaID yields a Duplicate outcome and changes nothing.
func Ingest(s Save, in RunInput, b config.Balance, now time.Time) (Outcome, error) {
	if !ValidDistance(in.Km) {
		return Outcome{}, ErrInvalidDistance
	}
	if s.HasStravaRun(in.StravaID) {
		return Outcome{Duplicate: true}, nil
	}

	date := in.Date
	if date.IsZero() {
		date = now
	}
	run := Run{
		ID:       uuid.NewString(),
		Date:     date,
		Km:       in.Km,
		Notes:    in.Notes,
		Source:   in.Source,
		StravaID: in.StravaID,
	}

	var out Outcome
	switch {
	case in.Source == SourceBoost:
		run.Type = RunBoost
		run.Credited = in.Km
	case in.QuestDirected && s.ActiveQuest != nil && s.ActiveQuest.Status == QuestActive:
		out = routeToQuest(*s.ActiveQuest, &run, now)
	default:
		run.Type = RunSurvival
		run.Credited = in.Km
	}
	out.Run = run

	after := s
	after.TotalKmRun += run.Credited
	if change, ok := RecalculateSpeed(after, b, now); ok {
		out.Speed = &change
	}
	return out, nil
}

// routeToQuest splits a run between the quest and survival. Distance past what
// the quest needs ("overflow") is credited; a short run is fully sacrificed.
func routeToQuest(q Quest, run *Run, now time.Time) Outcome {
	remaining := q.Remaining()
	if run.Km >= remaining {
		safety := round2(run.Km - remaining)
		q.Progress = q.Distance
		q.Status = QuestCompleted

		run.Type = RunQuestComplete
		run.Credited = safety
		run.Notes = fmt.Sprintf("%s (Quest Complete + %.2fkm Safety)", run.Notes, safety)

		return Outcome{
			Quest:  &q,
			Reward: q.RewardPart,
			Badge:  &Badge{ID: uuid.NewString(), Title: q.Title, Date: now},
		}
	}

	q.Progress = round2(q.Progress + run.Km)
	run.Type = RunQuestPartial
	run.Credited = 0
	run.Notes = fmt.Sprintf("%s (Dedicated to Quest)", run.Notes)
	return Outcome{Quest: &q}
}

// Apply replays an ingestion outcome on the save.
func (s *Save) Apply(o Outcome) {
	if o.Duplicate {
		return
	}
	s.TotalKmRun += o.Run.Credited
	s.RunHistory = append([]Run{o.Run}, s.RunHistory...)
	s.applyQuest(o.Quest)
	if o.Reward != "" {
		s.Inventory.Add(o.Reward, 1)
	}
	if o.Badge != nil {
		s.Badges = append(s.Badges, *o.Badge)
	}
	if o.Speed != nil {
		s.ApplySpeed(*o.Speed)
	}
}

func (s *Save) applyQuest(q *Quest) {
	if q == nil {
		return
	}
	switch q.Status {
	case QuestCompleted, QuestDiscarded:
		s.ActiveQuest = nil
	default:
		cp := *q
		s.ActiveQuest = &cp
	}
}
