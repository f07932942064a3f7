package progression

import (
	"time"

	"backend-theentity/internal/pursuit"
	"backend-theentity/internal/save"
)

// View is what clients see: the stored save and where the pursuer is now.
type View struct {
	Save       pursuit.Save       `json:"save"`
	Projection pursuit.Projection `json:"projection"`
}

type RunRequest struct {
	Km    float64 `json:"km"`
	Notes string  `json:"notes"`
	Quest bool    `json:"quest"`
}

type RunResult struct {
	View    View            `json:"view"`
	Outcome pursuit.Outcome `json:"outcome"`
}

type ConvertResult struct {
	View       View               `json:"view"`
	Conversion pursuit.Conversion `json:"conversion"`
}

// ConsumableResult carries either the applied effect or, when payment is
// needed, the purchase awaiting confirmation.
type ConsumableResult struct {
	Item     pursuit.Consumable `json:"item"`
	View     *View              `json:"view,omitempty"`
	Effect   any                `json:"effect,omitempty"`
	Purchase *save.Purchase     `json:"purchase,omitempty"`
}

type LinkRequest struct {
	AthleteID    string    `json:"athlete_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type SyncStatus string

const (
	SyncIngested  SyncStatus = "ingested"
	SyncDuplicate SyncStatus = "duplicate"
	SyncSkipped   SyncStatus = "skipped"
)

type SyncResult struct {
	Status   SyncStatus `json:"status"`
	PlayerID string     `json:"player_id,omitempty"`
	Run      RunResult  `json:"run"`
}

type BackfillResult struct {
	Imported   int  `json:"imported"`
	Duplicates int  `json:"duplicates"`
	Skipped    int  `json:"skipped"`
	View       View `json:"view"`
}
