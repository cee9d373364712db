// Package entities implements the thin side-schema objects spec.md §6
// names alongside Flows — Sessions, QuickFilters, Bookmarks, and the
// NotificationConfig singleton — each keyed by a google/uuid rather than
// the ULID scheme Flows use, since these are user-authored records with
// no inherent creation-order ordering requirement.
package entities

import (
	"time"

	"github.com/google/uuid"
)

// Session groups a set of Flows the user has chosen to collect
// together (e.g. one debugging pass).
type Session struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	FlowIDs   []string  `json:"flowIds"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QuickFilter is a named, saved filter expression.
type QuickFilter struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Bookmark pins a single Flow with an optional note.
type Bookmark struct {
	ID        uuid.UUID `json:"id"`
	FlowID    string    `json:"flowId"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationConfig is the single notification-preferences record.
type NotificationConfig struct {
	ThresholdWarningsEnabled bool `json:"thresholdWarningsEnabled"`
	FailuresEnabled          bool `json:"failuresEnabled"`
	DesktopEnabled           bool `json:"desktopEnabled"`
}

// DefaultNotificationConfig matches spec.md §9's defaults-on posture.
var DefaultNotificationConfig = NotificationConfig{
	ThresholdWarningsEnabled: true,
	FailuresEnabled:          true,
	DesktopEnabled:           false,
}
