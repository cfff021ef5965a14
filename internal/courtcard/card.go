// Package courtcard issues and verifies proof-of-attendance cards. A card
// binds one COMPLETED attendance record to a public verification URL and an
// integrity hash that detects tampering with the underlying record.
package courtcard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"proofmeet/internal/attendance"
)

// Validation statuses.
const (
	StatusPending = "PENDING"
	StatusPassed  = "PASSED"
	StatusFailed  = "FAILED"
)

// Card is an issued proof-of-attendance artifact. Immutable after issuance
// except for the derived verification URL, which a reissue may regenerate;
// the identifier and record linkage never change.
type Card struct {
	ID            string    `json:"id"`
	RecordID      string    `json:"record_id"`
	ParticipantID string    `json:"participant_id"`
	MeetingID     string    `json:"meeting_id"`
	IssuedAt      time.Time `json:"issued_at"`
	Hash          string    `json:"hash"`
	VerifyURL     string    `json:"verify_url"`
	LastStatus    string    `json:"last_status"`
	Reissues      []Reissue `json:"reissues,omitempty"`
}

// Reissue is one audit entry for a regenerated verification URL.
type Reissue struct {
	At     time.Time `json:"at"`
	OldURL string    `json:"old_url"`
	NewURL string    `json:"new_url"`
}

// HashRecord computes the integrity hash over the immutable attendance
// fields. The percent is fixed to four decimals to match what the tracker
// stores, so the digest is stable for identical inputs.
func HashRecord(rec attendance.Record) string {
	var leaveUnix int64
	if rec.LeftAt != nil {
		leaveUnix = rec.LeftAt.Unix()
	}
	payload := fmt.Sprintf("%s|%s|%d|%d|%.4f",
		rec.ParticipantID, rec.MeetingID, rec.JoinedAt.Unix(), leaveUnix, rec.AttendancePercent)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
