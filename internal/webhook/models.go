package webhook

import (
	"fmt"
	"strconv"
)

// Event is the push subscription payload Strava posts for every change.
type Event struct {
	ObjectType     string         `json:"object_type"`
	ObjectID       int64          `json:"object_id"`
	AspectType     string         `json:"aspect_type"`
	OwnerID        int64          `json:"owner_id"`
	SubscriptionID int64          `json:"subscription_id"`
	EventTime      int64          `json:"event_time"`
	Updates        map[string]any `json:"updates"`
}

func (e Event) athleteID() string  { return strconv.FormatInt(e.OwnerID, 10) }
func (e Event) activityID() string { return strconv.FormatInt(e.ObjectID, 10) }

func (e Event) isActivityCreate() bool {
	return e.ObjectType == "activity" && e.AspectType == "create"
}

// isDeauthorization reports an update revoking access. Strava sends the
// flag as the string "false"; a JSON boolean is accepted too.
func (e Event) isDeauthorization() bool {
	if e.AspectType != "update" {
		return false
	}
	v, ok := e.Updates["authorized"]
	if !ok {
		return false
	}
	switch a := v.(type) {
	case bool:
		return !a
	case string:
		return a == "false"
	default:
		return fmt.Sprint(a) == "false"
	}
}

type VerifyResponse struct {
	Challenge string `json:"hub.challenge"`
}
