package courtcard

import (
	"context"
	"log"
	"time"

	"proofmeet/internal/fault"
)

// VerifyResult is what a third party sees when checking a card. NotFound is
// an error, never a result, so an unknown serial is distinguishable from a
// card that exists but fails validation.
type VerifyResult struct {
	CardID            string    `json:"card_id"`
	Status            string    `json:"status"`
	ParticipantID     string    `json:"participant_id"`
	MeetingID         string    `json:"meeting_id"`
	JoinedAt          time.Time `json:"joined_at"`
	LeftAt            time.Time `json:"left_at"`
	AttendancePercent float64   `json:"attendance_percent"`
	IssuedAt          time.Time `json:"issued_at"`
	Reissues          []Reissue `json:"reissues,omitempty"`
}

// Verifier checks card integrity against current attendance data.
type Verifier struct {
	store   Store
	records Records
}

// NewVerifier creates a verifier.
func NewVerifier(store Store, records Records) *Verifier {
	return &Verifier{store: store, records: records}
}

// Verify recomputes the hash over the linked record's current fields on
// every call and compares it to the stored one. A mismatch means tampering
// or corruption and comes back as FAILED, not as an error: a forged card is
// an expected outcome for this endpoint, not a system fault.
func (v *Verifier) Verify(ctx context.Context, cardID string) (VerifyResult, error) {
	card, err := v.store.Get(ctx, cardID)
	if err != nil {
		return VerifyResult{}, err
	}
	rec, err := v.records.Get(ctx, card.RecordID)
	if err != nil {
		return VerifyResult{}, fault.Errorf(fault.ErrInvalidState, "card %s has no attendance record: %v", cardID, err)
	}

	status := StatusFailed
	if HashRecord(rec) == card.Hash {
		status = StatusPassed
	}
	// Best effort: the check itself is never cached, the stored status is
	// only a convenience for dashboards.
	if err := v.store.SetLastStatus(ctx, card.ID, status); err != nil {
		log.Printf("update card %s status failed: %v", card.ID, err)
	}

	res := VerifyResult{
		CardID:            card.ID,
		Status:            status,
		ParticipantID:     card.ParticipantID,
		MeetingID:         card.MeetingID,
		JoinedAt:          rec.JoinedAt,
		AttendancePercent: rec.AttendancePercent,
		IssuedAt:          card.IssuedAt,
		Reissues:          card.Reissues,
	}
	if rec.LeftAt != nil {
		res.LeftAt = *rec.LeftAt
	}
	return res, nil
}
