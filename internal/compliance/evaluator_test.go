package compliance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofmeet/internal/attendance"
	"proofmeet/internal/compliance"
	"proofmeet/internal/participant"
)

func completedRecord(id string, joined time.Time, active time.Duration, percent float64) attendance.Record {
	left := joined.Add(active)
	return attendance.Record{
		ID:                id,
		ParticipantID:     "p1",
		MeetingID:         "m-" + id,
		JoinedAt:          joined,
		LeftAt:            &left,
		TotalDuration:     active,
		ActiveDuration:    active,
		AttendancePercent: percent,
		Status:            attendance.StatusCompleted,
	}
}

func TestPeriodBoundaries(t *testing.T) {
	// 2026-03-04 is a Wednesday; the 7-day window must start on Monday.
	asOf := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	start, end := compliance.Period(asOf, 7)

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Monday, start.Weekday())

	// Any instant inside the window maps to the same window.
	s2, e2 := compliance.Period(end.Add(-time.Second), 7)
	assert.Equal(t, start, s2)
	assert.Equal(t, end, e2)

	// The boundary instant belongs to the next window.
	s3, _ := compliance.Period(end, 7)
	assert.Equal(t, end, s3)
}

func TestComputeWeeklyScenario(t *testing.T) {
	asOf := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	start, _ := compliance.Period(asOf, 7)
	p := participant.Participant{ID: "p1", RequiredSessions: 3, PeriodDays: 7}

	abandoned := completedRecord("r3", start.Add(48*time.Hour), 10*time.Minute, 0)
	abandoned.Status = attendance.StatusAbandoned
	open := completedRecord("r4", start.Add(72*time.Hour), 0, 0)
	open.Status = attendance.StatusInProgress
	open.LeftAt = nil

	records := []attendance.Record{
		completedRecord("r1", start.Add(2*time.Hour), 45*time.Minute, 0.75),
		completedRecord("r2", start.Add(26*time.Hour), 60*time.Minute, 1.0),
		abandoned,
		open,
	}

	snap := compliance.Compute(p, records, asOf)
	assert.Equal(t, 2, snap.CompletedCount)
	assert.False(t, snap.MeetsRequirement, "2 of 3 required sessions")
	assert.Equal(t, 105*time.Minute, snap.ActiveDuration)
	assert.InDelta(t, 0.875, snap.AveragePercent, 1e-9)
}

func TestComputeIsPure(t *testing.T) {
	asOf := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	start, _ := compliance.Period(asOf, 7)
	p := participant.Participant{ID: "p1", RequiredSessions: 2, PeriodDays: 7}
	records := []attendance.Record{
		completedRecord("r1", start.Add(time.Hour), 30*time.Minute, 0.5),
		completedRecord("r2", start.Add(25*time.Hour), 55*time.Minute, 0.9167),
	}

	first := compliance.Compute(p, records, asOf)
	second := compliance.Compute(p, records, asOf)
	require.Equal(t, first, second)
	assert.True(t, first.MeetsRequirement)
}

func TestComputeEmptyHistory(t *testing.T) {
	asOf := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	p := participant.Participant{ID: "p1", RequiredSessions: 3, PeriodDays: 7}
	snap := compliance.Compute(p, nil, asOf)
	assert.Zero(t, snap.CompletedCount)
	assert.Zero(t, snap.ActiveDuration)
	assert.Zero(t, snap.AveragePercent)
	assert.False(t, snap.MeetsRequirement)

	// Zero required sessions is vacuously met.
	p.RequiredSessions = 0
	assert.True(t, compliance.Compute(p, nil, asOf).MeetsRequirement)
}

func TestComputeIgnoresRecordsOutsidePeriod(t *testing.T) {
	asOf := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	start, end := compliance.Period(asOf, 7)
	p := participant.Participant{ID: "p1", RequiredSessions: 1, PeriodDays: 7}

	records := []attendance.Record{
		completedRecord("before", start.Add(-time.Hour), 60*time.Minute, 1.0),
		completedRecord("at-end", end, 60*time.Minute, 1.0),
	}
	snap := compliance.Compute(p, records, asOf)
	assert.Zero(t, snap.CompletedCount)
	assert.False(t, snap.MeetsRequirement)
}
