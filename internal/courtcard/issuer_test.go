package courtcard_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofmeet/internal/attendance"
	"proofmeet/internal/courtcard"
	"proofmeet/internal/fault"
)

type memCards struct {
	mu    sync.Mutex
	seq   map[int]int
	cards map[string]courtcard.Card
	order []string
}

func newMemCards() *memCards {
	return &memCards{seq: make(map[int]int), cards: make(map[string]courtcard.Card)}
}

func (s *memCards) AllocateSerial(_ context.Context, year int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[year]++
	return courtcard.FormatSerial(year, s.seq[year]), nil
}

func (s *memCards) Insert(_ context.Context, card courtcard.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cards {
		if existing.RecordID == card.RecordID {
			return fault.Errorf(fault.ErrConflict, "record %s already has a card", card.RecordID)
		}
	}
	s.cards[card.ID] = card
	s.order = append(s.order, card.ID)
	return nil
}

func (s *memCards) Get(_ context.Context, id string) (courtcard.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return courtcard.Card{}, fault.Errorf(fault.ErrNotFound, "card %s", id)
	}
	card.Reissues = append([]courtcard.Reissue(nil), card.Reissues...)
	return card, nil
}

func (s *memCards) UpdateVerifyURL(_ context.Context, id, verifyURL string, entry courtcard.Reissue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return fault.Errorf(fault.ErrNotFound, "card %s", id)
	}
	if card.VerifyURL == verifyURL {
		return nil
	}
	card.VerifyURL = verifyURL
	card.Reissues = append(card.Reissues, entry)
	s.cards[id] = card
	return nil
}

func (s *memCards) SetLastStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.cards[id]
	if !ok {
		return fault.Errorf(fault.ErrNotFound, "card %s", id)
	}
	card.LastStatus = status
	s.cards[id] = card
	return nil
}

func (s *memCards) ListIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

type memRecords struct {
	mu    sync.Mutex
	recs  map[string]attendance.Record
	cards *memCards
}

func (s *memRecords) Get(_ context.Context, id string) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return attendance.Record{}, fault.Errorf(fault.ErrNotFound, "attendance record %s", id)
	}
	return rec, nil
}

func (s *memRecords) ListCompletedWithoutCards(_ context.Context, limit int) ([]attendance.Record, error) {
	carded := make(map[string]bool)
	if s.cards != nil {
		s.cards.mu.Lock()
		for _, card := range s.cards.cards {
			carded[card.RecordID] = true
		}
		s.cards.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []attendance.Record
	for _, rec := range s.recs {
		if rec.Status == attendance.StatusCompleted && !carded[rec.ID] {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memRecords) put(rec attendance.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
}

func completedRecord(id string) attendance.Record {
	joined := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	left := joined.Add(45 * time.Minute)
	return attendance.Record{
		ID:                id,
		ParticipantID:     "p1",
		MeetingID:         "m1",
		JoinedAt:          joined,
		LeftAt:            &left,
		TotalDuration:     45 * time.Minute,
		ActiveDuration:    45 * time.Minute,
		AttendancePercent: 0.75,
		Status:            attendance.StatusCompleted,
	}
}

func TestNewIssuerRequiresBaseURL(t *testing.T) {
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}

	_, err := courtcard.NewIssuer(store, records, "")
	assert.ErrorIs(t, err, fault.ErrConfiguration, "missing base URL must fail at construction")

	_, err = courtcard.NewIssuer(store, records, "not a url")
	assert.ErrorIs(t, err, fault.ErrConfiguration)

	_, err = courtcard.NewIssuer(store, records, "ftp://cards.example.com")
	assert.ErrorIs(t, err, fault.ErrConfiguration)

	_, err = courtcard.NewIssuer(store, records, "https://verify.example.com")
	assert.NoError(t, err)
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}
	issuer, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)

	rec := completedRecord("rec-1")
	records.put(rec)

	card, err := issuer.Issue(ctx, rec)
	require.NoError(t, err)
	assert.True(t, courtcard.ValidSerial(card.ID), "serial %s must carry a valid checksum", card.ID)
	assert.Equal(t, rec.ID, card.RecordID)
	assert.Equal(t, "https://verify.example.com/verify/"+card.ID, card.VerifyURL)
	assert.Equal(t, courtcard.HashRecord(rec), card.Hash)
	assert.Equal(t, courtcard.StatusPending, card.LastStatus)

	// Same record again: the unique linkage backstops the close-side guard.
	_, err = issuer.Issue(ctx, rec)
	assert.ErrorIs(t, err, fault.ErrConflict)

	// Non-completed records never get a card.
	open := completedRecord("rec-2")
	open.Status = attendance.StatusInProgress
	_, err = issuer.Issue(ctx, open)
	assert.ErrorIs(t, err, fault.ErrPrecondition)
}

func TestReissueIdempotentUnderSameConfig(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}
	issuer, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)

	rec := completedRecord("rec-1")
	records.put(rec)
	card, err := issuer.Issue(ctx, rec)
	require.NoError(t, err)

	again, err := issuer.Reissue(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.ID, again.ID)
	assert.Equal(t, card.RecordID, again.RecordID)
	assert.Equal(t, card.VerifyURL, again.VerifyURL)
	assert.Empty(t, again.Reissues, "no-op reissue leaves no audit entry")
}

func TestReissueAfterBaseURLChange(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}

	issuer, err := courtcard.NewIssuer(store, records, "https://wrong.example.com")
	require.NoError(t, err)
	rec := completedRecord("rec-1")
	records.put(rec)
	card, err := issuer.Issue(ctx, rec)
	require.NoError(t, err)

	// The documented remediation: configuration fixed, cards reissued.
	fixed, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)

	updated, err := fixed.Reissue(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.ID, updated.ID, "identifier survives reissue")
	assert.Equal(t, card.RecordID, updated.RecordID, "linkage survives reissue")
	assert.Equal(t, card.Hash, updated.Hash, "hash is bound to the record, not the URL")
	assert.Equal(t, "https://verify.example.com/verify/"+card.ID, updated.VerifyURL)
	require.Len(t, updated.Reissues, 1)
	assert.Equal(t, card.VerifyURL, updated.Reissues[0].OldURL)

	// Running the remediation twice is safe.
	twice, err := fixed.Reissue(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.VerifyURL, twice.VerifyURL)
	assert.Len(t, twice.Reissues, 1)
}

func TestReissueUnknownCard(t *testing.T) {
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}
	issuer, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)

	_, err = issuer.Reissue(context.Background(), "CC-2026-99999-00")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestIssueMissingRecoversCardlessCompletedRecords(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record), cards: store}
	issuer, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)

	// A COMPLETED record with no card: the state left behind when issuance
	// failed after the close already committed.
	orphan := completedRecord("rec-orphan")
	records.put(orphan)

	// An already-carded record and an open one must not be touched.
	carded := completedRecord("rec-carded")
	records.put(carded)
	_, err = issuer.Issue(ctx, carded)
	require.NoError(t, err)
	open := completedRecord("rec-open")
	open.Status = attendance.StatusInProgress
	records.put(open)

	res, err := issuer.IssueMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Issued)
	assert.Zero(t, res.Failed)

	// The orphan now has exactly one verifiable card.
	pending, err := records.ListCompletedWithoutCards(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	recovered, err := store.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, recovered.RecordID)
	assert.Equal(t, courtcard.HashRecord(orphan), recovered.Hash)

	// Sweeping again is a no-op.
	res, err = issuer.IssueMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Total)
	assert.Zero(t, res.Issued)
}

func TestReissueAllTally(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}

	issuer, err := courtcard.NewIssuer(store, records, "https://wrong.example.com")
	require.NoError(t, err)
	for _, id := range []string{"rec-1", "rec-2", "rec-3"} {
		rec := completedRecord(id)
		records.put(rec)
		_, err := issuer.Issue(ctx, rec)
		require.NoError(t, err)
	}

	fixed, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)

	res, err := fixed.ReissueAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Updated)
	assert.Zero(t, res.Failed)

	// Second run: everything already matches the fixed configuration.
	res, err = fixed.ReissueAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Unchanged)
	assert.Zero(t, res.Updated)
}
