// Package compliance aggregates attendance history into per-period
// snapshots for court review.
package compliance

import (
	"context"
	"math"
	"time"

	"proofmeet/internal/attendance"
	"proofmeet/internal/participant"
)

// periodEpoch anchors period boundaries. 2001-01-01 is a Monday, so with a
// 7-day period the windows line up with ISO weeks.
var periodEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Snapshot is the derived compliance state for one participant and period.
// It is recomputed from attendance history on demand, never stored.
type Snapshot struct {
	ParticipantID    string        `json:"participant_id"`
	PeriodStart      time.Time     `json:"period_start"`
	PeriodEnd        time.Time     `json:"period_end"`
	CompletedCount   int           `json:"completed_count"`
	ActiveDuration   time.Duration `json:"active_duration"`
	AveragePercent   float64       `json:"average_percent"`
	RequiredSessions int           `json:"required_sessions"`
	MeetsRequirement bool          `json:"meets_requirement"`
}

// Period returns the [start, end) window of length periodDays containing
// asOf. Boundaries derive only from the fixed epoch and the inputs, so the
// same asOf always lands in the same window.
func Period(asOf time.Time, periodDays int) (time.Time, time.Time) {
	if periodDays <= 0 {
		periodDays = 7
	}
	length := time.Duration(periodDays) * 24 * time.Hour
	elapsed := asOf.UTC().Sub(periodEpoch)
	idx := elapsed / length
	if elapsed < 0 && elapsed%length != 0 {
		idx--
	}
	start := periodEpoch.Add(idx * length)
	return start, start.Add(length)
}

// Compute derives a snapshot from the given records. Pure: identical inputs
// produce identical snapshots. IN_PROGRESS and ABANDONED records are ignored
// entirely; only records joined inside the period count.
func Compute(p participant.Participant, records []attendance.Record, asOf time.Time) Snapshot {
	start, end := Period(asOf, p.PeriodDays)
	snap := Snapshot{
		ParticipantID:    p.ID,
		PeriodStart:      start,
		PeriodEnd:        end,
		RequiredSessions: p.RequiredSessions,
	}

	var percentSum float64
	for _, rec := range records {
		if rec.Status != attendance.StatusCompleted {
			continue
		}
		if rec.JoinedAt.Before(start) || !rec.JoinedAt.Before(end) {
			continue
		}
		snap.CompletedCount++
		snap.ActiveDuration += rec.ActiveDuration
		percentSum += rec.AttendancePercent
	}
	if snap.CompletedCount > 0 {
		snap.AveragePercent = math.Round(percentSum/float64(snap.CompletedCount)*10000) / 10000
	}
	snap.MeetsRequirement = snap.CompletedCount >= p.RequiredSessions
	return snap
}

// Participants resolves window configuration.
type Participants interface {
	Get(ctx context.Context, id string) (participant.Participant, error)
}

// Records loads attendance history for a window.
type Records interface {
	ListInWindow(ctx context.Context, participantID string, from, to time.Time) ([]attendance.Record, error)
}

// Service loads the data a snapshot needs and runs the pure computation.
type Service struct {
	participants Participants
	records      Records
}

// NewService creates a service.
func NewService(participants Participants, records Records) *Service {
	return &Service{participants: participants, records: records}
}

// Evaluate returns the snapshot for the period containing asOf.
func (s *Service) Evaluate(ctx context.Context, participantID string, asOf time.Time) (Snapshot, error) {
	p, err := s.participants.Get(ctx, participantID)
	if err != nil {
		return Snapshot{}, err
	}
	start, end := Period(asOf, p.PeriodDays)
	records, err := s.records.ListInWindow(ctx, participantID, start, end)
	if err != nil {
		return Snapshot{}, err
	}
	return Compute(p, records, asOf), nil
}
