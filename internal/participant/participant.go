// Package participant manages enrolled individuals and their compliance
// window configuration. Participants are never hard-deleted; the attendance
// history behind them is an audit trail.
package participant

import "time"

// Participant is an individual required to attend recurring sessions under
// the supervision of a court representative.
type Participant struct {
	ID               string    `json:"id"`
	CaseNumber       string    `json:"case_number"`
	Name             *string   `json:"name,omitempty"`
	OfficerID        string    `json:"officer_id"`
	RequiredSessions int       `json:"required_sessions"`
	PeriodDays       int       `json:"period_days"`
	CreatedAt        time.Time `json:"created_at"`
}
