// Package attendance tracks join/leave spans per participant and meeting
// and drives court-card issuance when a span completes.
package attendance

import "time"

// Record lifecycle states.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusAbandoned  = "ABANDONED"
)

// DefaultVerificationMethod tags records opened through the join endpoint.
const DefaultVerificationMethod = "meeting_join"

// Record is one participant's span in one meeting. Open records have a nil
// LeftAt; closed records are immutable history.
type Record struct {
	ID                 string        `json:"id"`
	ParticipantID      string        `json:"participant_id"`
	MeetingID          string        `json:"meeting_id"`
	JoinedAt           time.Time     `json:"joined_at"`
	LeftAt             *time.Time    `json:"left_at,omitempty"`
	TotalDuration      time.Duration `json:"total_duration"`
	ActiveDuration     time.Duration `json:"active_duration"`
	AttendancePercent  float64       `json:"attendance_percent"`
	Status             string        `json:"status"`
	VerificationMethod string        `json:"verification_method"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Closed reports whether the record reached a terminal state.
func (r Record) Closed() bool {
	return r.Status == StatusCompleted || r.Status == StatusAbandoned
}
