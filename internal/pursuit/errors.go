package pursuit

import "errors"

var (
	ErrInvalidDistance   = errors.New("distance must be a positive number")
	ErrNotOnboarded      = errors.New("pursuit has not started")
	ErrInvalidDuration   = errors.New("duration must be 30, 90 or 365 days")
	ErrInvalidDifficulty = errors.New("difficulty must be easy, medium or hard")
	ErrPaymentRequired   = errors.New("payment confirmation required")
	ErrNoDistanceToday   = errors.New("log a run today before boosting")
	ErrNotCaught         = errors.New("continue is only offered once caught")
	ErrNoQuest           = errors.New("no quest on offer")
	ErrQuestNotAvailable = errors.New("quest is not awaiting acceptance")
	ErrRunNotFound       = errors.New("run not found")
	ErrRunNotConvertible = errors.New("only survival runs can be converted")
	ErrUnknownConsumable = errors.New("unknown consumable")
)
