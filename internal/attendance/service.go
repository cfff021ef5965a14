package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"proofmeet/internal/fault"
	"proofmeet/internal/meeting"
)

// Store is the persistence the service needs.
type Store interface {
	InsertOpen(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	CloseIfOpen(ctx context.Context, closed Record) (Record, error)
}

// Meetings resolves meeting metadata for duration math.
type Meetings interface {
	Get(ctx context.Context, id string) (meeting.Meeting, error)
}

// Issuer is called synchronously when a record completes. Issuance is part
// of the close operation: compliance readers assume every COMPLETED record
// already has a card.
type Issuer interface {
	Issue(ctx context.Context, rec Record) error
}

// IssuerFunc adapts a function to the Issuer interface.
type IssuerFunc func(ctx context.Context, rec Record) error

// Issue calls f.
func (f IssuerFunc) Issue(ctx context.Context, rec Record) error { return f(ctx, rec) }

// ActivityMeter reduces total presence to active presence. The default keeps
// them equal; a webcam/activity verifier can plug in here without the tracker
// knowing how it measures.
type ActivityMeter func(rec Record, total time.Duration) time.Duration

// Service coordinates the attendance record lifecycle.
type Service struct {
	store    Store
	meetings Meetings
	issuer   Issuer
	meter    ActivityMeter
	minRatio float64
}

// NewService creates a service. minRatio is the fraction of the planned
// duration a participant must be active for to count as COMPLETED.
func NewService(store Store, meetings Meetings, issuer Issuer, meter ActivityMeter, minRatio float64) *Service {
	if minRatio <= 0 || minRatio > 1 {
		minRatio = 0.5
	}
	if meter == nil {
		meter = func(_ Record, total time.Duration) time.Duration { return total }
	}
	return &Service{store: store, meetings: meetings, issuer: issuer, meter: meter, minRatio: minRatio}
}

// Open starts an IN_PROGRESS record. Duplicate joins for the same pair hit
// the storage uniqueness guard and surface as fault.ErrConflict.
func (s *Service) Open(ctx context.Context, participantID, meetingID string, joinedAt time.Time) (Record, error) {
	if participantID == "" || meetingID == "" {
		return Record{}, fault.Errorf(fault.ErrInvalidInput, "participant and meeting required")
	}
	m, err := s.meetings.Get(ctx, meetingID)
	if err != nil {
		return Record{}, err
	}
	if m.Cancelled {
		return Record{}, fault.Errorf(fault.ErrInvalidState, "meeting %s is cancelled", meetingID)
	}
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}
	return s.store.InsertOpen(ctx, Record{
		ParticipantID:      participantID,
		MeetingID:          meetingID,
		JoinedAt:           joinedAt.UTC(),
		VerificationMethod: DefaultVerificationMethod,
	})
}

// Close ends an open record, computes durations and the attendance percent,
// and issues a court card when the record completes. Concurrent closes are
// serialized by the guarded update: the loser sees fault.ErrInvalidState and
// no second card is issued.
func (s *Service) Close(ctx context.Context, recordID string, leftAt time.Time) (Record, error) {
	rec, err := s.store.Get(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusInProgress {
		return Record{}, fault.Errorf(fault.ErrInvalidState, "attendance record %s is %s", recordID, rec.Status)
	}
	if leftAt.IsZero() {
		leftAt = time.Now().UTC()
	}
	leftAt = leftAt.UTC()
	if leftAt.Before(rec.JoinedAt) {
		return Record{}, fault.Errorf(fault.ErrInvalidInput, "leave %s before join %s", leftAt, rec.JoinedAt)
	}

	m, err := s.meetings.Get(ctx, rec.MeetingID)
	if err != nil {
		return Record{}, err
	}

	total := leftAt.Sub(rec.JoinedAt)
	active := s.meter(rec, total)
	if active < 0 {
		active = 0
	}
	if active > total {
		active = total
	}

	rec.LeftAt = &leftAt
	rec.TotalDuration = total
	rec.ActiveDuration = active
	rec.Status = StatusAbandoned
	// The percentage is only meaningful for completed records; abandoned
	// ones keep zero so nothing downstream reads a partial value.
	rec.AttendancePercent = 0
	if active >= minimumActive(m.PlannedDuration, s.minRatio) {
		rec.Status = StatusCompleted
		rec.AttendancePercent = percentOf(active, m.PlannedDuration)
	}

	closed, err := s.store.CloseIfOpen(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	if closed.Status == StatusCompleted {
		if err := s.issuer.Issue(ctx, closed); err != nil {
			// The record is terminal at this point and a retry of Close
			// would see ErrInvalidState, so the failure must not vanish:
			// the issue-missing sweep finds cardless COMPLETED records
			// and issues them once the issuer recovers.
			return Record{}, fmt.Errorf("record %s closed but card issuance failed: %w", closed.ID, err)
		}
	}
	return closed, nil
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.store.Get(ctx, id)
}

// percentOf is active over planned, clamped to [0,1] and rounded to four
// decimals so the stored value matches what the card hash covers.
func percentOf(active, planned time.Duration) float64 {
	if planned <= 0 {
		return 0
	}
	p := active.Seconds() / planned.Seconds()
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return math.Round(p*10000) / 10000
}

func minimumActive(planned time.Duration, ratio float64) time.Duration {
	return time.Duration(float64(planned) * ratio)
}
