package pursuit

import (
	"math"
	"time"

	"backend-theentity/internal/config"

	"github.com/google/uuid"
)

var questTitles = []string{
	"Signal Relay",
	"Supply Drop",
	"Dead Zone Sweep",
	"Power Grid Patrol",
	"Frequency Hunt",
}

// OfferQuest generates the next quest when the cadence allows and no quest is
// currently held.
func OfferQuest(s Save, b config.Balance, now time.Time) (Quest, int, bool) {
	if !s.OnboardingComplete || s.ActiveQuest != nil || b.QuestCadenceDays <= 0 {
		return Quest{}, 0, false
	}
	day := DaysSince(s.StartDate, now)
	if day-s.LastQuestGenerationDay < b.QuestCadenceDays {
		return Quest{}, 0, false
	}

	idx := day / b.QuestCadenceDays
	distance := math.Round(s.EntitySpeed * b.QuestSpeedFactor)
	distance = math.Min(b.QuestMaxKm, math.Max(b.QuestMinKm, distance))

	return Quest{
		ID:         uuid.NewString(),
		Title:      questTitles[idx%len(questTitles)],
		Distance:   distance,
		RewardPart: Parts[idx%len(Parts)],
		Status:     QuestAvailable,
		CreatedAt:  now,
	}, day, true
}

func (s *Save) ApplyOffer(q Quest, day int) {
	cp := q
	s.ActiveQuest = &cp
	s.LastQuestGenerationDay = day
}

// AcceptQuest moves the offered quest from available to active.
func AcceptQuest(s Save) (Quest, error) {
	if s.ActiveQuest == nil {
		return Quest{}, ErrNoQuest
	}
	if s.ActiveQuest.Status != QuestAvailable {
		return Quest{}, ErrQuestNotAvailable
	}
	q := *s.ActiveQuest
	q.Status = QuestActive
	return q, nil
}

// DiscardQuest drops an offered quest that was never accepted.
func DiscardQuest(s Save) (Quest, error) {
	if s.ActiveQuest == nil {
		return Quest{}, ErrNoQuest
	}
	if s.ActiveQuest.Status != QuestAvailable {
		return Quest{}, ErrQuestNotAvailable
	}
	q := *s.ActiveQuest
	q.Status = QuestDiscarded
	return q, nil
}

// ApplyQuest stores a quest transition produced by AcceptQuest or DiscardQuest.
func (s *Save) ApplyQuest(q Quest) {
	s.applyQuest(&q)
}
