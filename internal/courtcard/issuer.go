package courtcard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"proofmeet/internal/attendance"
	"proofmeet/internal/fault"
)

// Store is the persistence the issuer and verifier need.
type Store interface {
	AllocateSerial(ctx context.Context, year int) (string, error)
	Insert(ctx context.Context, card Card) error
	Get(ctx context.Context, id string) (Card, error)
	UpdateVerifyURL(ctx context.Context, id, verifyURL string, entry Reissue) error
	SetLastStatus(ctx context.Context, id, status string) error
	ListIDs(ctx context.Context) ([]string, error)
}

// Records resolves the attendance records cards are bound to.
type Records interface {
	Get(ctx context.Context, id string) (attendance.Record, error)
	ListCompletedWithoutCards(ctx context.Context, limit int) ([]attendance.Record, error)
}

// Issuer creates cards for completed attendance records.
type Issuer struct {
	store   Store
	records Records
	baseURL string
}

// NewIssuer creates an issuer. The base URL is required configuration: a
// guessed default would end up printed on QR codes courts scan, so a missing
// or unparseable value fails here, at construction, not at first issuance.
func NewIssuer(store Store, records Records, baseURL string) (*Issuer, error) {
	if baseURL == "" {
		return nil, fault.Errorf(fault.ErrConfiguration, "verification base URL not set")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fault.Errorf(fault.ErrConfiguration, "verification base URL %q is not an absolute http(s) URL", baseURL)
	}
	return &Issuer{store: store, records: records, baseURL: fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)}, nil
}

// Issue creates a card for a COMPLETED record. Exactly one card exists per
// record; the unique record linkage in storage backstops the close-side
// serialization, so a duplicate attempt surfaces as fault.ErrConflict.
func (i *Issuer) Issue(ctx context.Context, rec attendance.Record) (Card, error) {
	if rec.Status != attendance.StatusCompleted {
		return Card{}, fault.Errorf(fault.ErrPrecondition, "record %s is %s, not %s", rec.ID, rec.Status, attendance.StatusCompleted)
	}
	now := time.Now().UTC()
	serial, err := i.store.AllocateSerial(ctx, now.Year())
	if err != nil {
		return Card{}, err
	}
	card := Card{
		ID:            serial,
		RecordID:      rec.ID,
		ParticipantID: rec.ParticipantID,
		MeetingID:     rec.MeetingID,
		IssuedAt:      now,
		Hash:          HashRecord(rec),
		VerifyURL:     i.verifyURL(serial),
		LastStatus:    StatusPending,
	}
	if err := i.store.Insert(ctx, card); err != nil {
		return Card{}, err
	}
	return card, nil
}

// Reissue regenerates the derived verification URL for an existing card.
// The identifier, record linkage, and hash are preserved: the hash covers
// the attendance record, not the URL, and recomputing it here would let a
// reissue launder a tampered record back to PASSED. Idempotent: with
// unchanged configuration the card comes back as-is.
func (i *Issuer) Reissue(ctx context.Context, cardID string) (Card, error) {
	card, err := i.store.Get(ctx, cardID)
	if err != nil {
		return Card{}, err
	}
	newURL := i.verifyURL(card.ID)
	if newURL == card.VerifyURL {
		return card, nil
	}
	entry := Reissue{At: time.Now().UTC(), OldURL: card.VerifyURL, NewURL: newURL}
	if err := i.store.UpdateVerifyURL(ctx, card.ID, newURL, entry); err != nil {
		return Card{}, err
	}
	return i.store.Get(ctx, cardID)
}

// BulkResult reports per-item outcomes of a bulk reissue.
type BulkResult struct {
	Total     int      `json:"total"`
	Updated   int      `json:"updated"`
	Unchanged int      `json:"unchanged"`
	Failed    int      `json:"failed"`
	Failures  []string `json:"failures,omitempty"`
}

// ReissueAll reissues every card, tallying outcomes. One bad card never
// fails the batch.
func (i *Issuer) ReissueAll(ctx context.Context) (BulkResult, error) {
	ids, err := i.store.ListIDs(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	res := BulkResult{Total: len(ids)}
	for _, id := range ids {
		before, err := i.store.Get(ctx, id)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, id)
			continue
		}
		after, err := i.Reissue(ctx, id)
		if err != nil {
			log.Printf("reissue %s failed: %v", id, err)
			res.Failed++
			res.Failures = append(res.Failures, id)
			continue
		}
		if after.VerifyURL == before.VerifyURL {
			res.Unchanged++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// IssueMissingResult tallies an issue-missing sweep.
type IssueMissingResult struct {
	Total    int      `json:"total"`
	Issued   int      `json:"issued"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures,omitempty"`
}

// IssueMissing issues cards for COMPLETED records that have none. A close
// whose synchronous issuance failed leaves exactly that state behind, and
// the record cannot be closed again, so the sweep re-drives issuance from
// storage. Safe to repeat: a record issued meanwhile hits the unique record
// linkage and counts as skipped.
func (i *Issuer) IssueMissing(ctx context.Context) (IssueMissingResult, error) {
	recs, err := i.records.ListCompletedWithoutCards(ctx, 0)
	if err != nil {
		return IssueMissingResult{}, err
	}
	res := IssueMissingResult{Total: len(recs)}
	for _, rec := range recs {
		if _, err := i.Issue(ctx, rec); err != nil {
			if errors.Is(err, fault.ErrConflict) {
				res.Skipped++
				continue
			}
			log.Printf("issue missing card for record %s failed: %v", rec.ID, err)
			res.Failed++
			res.Failures = append(res.Failures, rec.ID)
			continue
		}
		res.Issued++
	}
	return res, nil
}

func (i *Issuer) verifyURL(serial string) string {
	return i.baseURL + "/verify/" + serial
}
