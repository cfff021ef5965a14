// Package meeting stores meetings and creates test meetings on the external
// host for court representatives.
package meeting

import "time"

// Meeting sources.
const (
	SourceTest      = "test"
	SourceScheduled = "scheduled"
)

// Meeting is one session participants can attend. Immutable once created
// except for the cancellation flag.
type Meeting struct {
	ID              string        `json:"id"`
	Source          string        `json:"source"`
	Topic           string        `json:"topic"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	PlannedDuration time.Duration `json:"planned_duration"`
	ExternalID      string        `json:"external_id,omitempty"`
	JoinURL         string        `json:"join_url,omitempty"`
	Password        string        `json:"-"`
	Cancelled       bool          `json:"cancelled"`
	CreatedAt       time.Time     `json:"created_at"`
}
