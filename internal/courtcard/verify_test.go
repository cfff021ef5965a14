package courtcard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofmeet/internal/attendance"
	"proofmeet/internal/courtcard"
	"proofmeet/internal/fault"
)

func TestVerify(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}
	issuer, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)
	verifier := courtcard.NewVerifier(store, records)

	rec := completedRecord("rec-1")
	records.put(rec)
	card, err := issuer.Issue(ctx, rec)
	require.NoError(t, err)

	t.Run("FreshCardPasses", func(t *testing.T) {
		res, err := verifier.Verify(ctx, card.ID)
		require.NoError(t, err)
		assert.Equal(t, courtcard.StatusPassed, res.Status)
		assert.Equal(t, rec.ParticipantID, res.ParticipantID)
		assert.Equal(t, rec.JoinedAt, res.JoinedAt)
		assert.InDelta(t, 0.75, res.AttendancePercent, 1e-9)
		assert.False(t, res.IssuedAt.IsZero())
	})

	t.Run("TamperedRecordFails", func(t *testing.T) {
		tampered := rec
		shifted := rec.LeftAt.Add(2 * time.Hour)
		tampered.LeftAt = &shifted
		tampered.AttendancePercent = 1.0
		records.put(tampered)

		res, err := verifier.Verify(ctx, card.ID)
		require.NoError(t, err, "a tampered card is a result, not a system fault")
		assert.Equal(t, courtcard.StatusFailed, res.Status)

		// Restoring the original fields restores PASSED: the check runs
		// against current data on every call, never a cached verdict.
		records.put(rec)
		res, err = verifier.Verify(ctx, card.ID)
		require.NoError(t, err)
		assert.Equal(t, courtcard.StatusPassed, res.Status)
	})

	t.Run("UnknownCardNotFound", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "CC-2026-99999-00")
		assert.ErrorIs(t, err, fault.ErrNotFound)
	})
}

func TestVerifyIncludesReissueHistory(t *testing.T) {
	ctx := context.Background()
	store := newMemCards()
	records := &memRecords{recs: make(map[string]attendance.Record)}

	issuer, err := courtcard.NewIssuer(store, records, "https://wrong.example.com")
	require.NoError(t, err)
	rec := completedRecord("rec-1")
	records.put(rec)
	card, err := issuer.Issue(ctx, rec)
	require.NoError(t, err)

	fixed, err := courtcard.NewIssuer(store, records, "https://verify.example.com")
	require.NoError(t, err)
	_, err = fixed.Reissue(ctx, card.ID)
	require.NoError(t, err)

	verifier := courtcard.NewVerifier(store, records)
	res, err := verifier.Verify(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, courtcard.StatusPassed, res.Status, "reissue must not break validation")
	require.Len(t, res.Reissues, 1)
	assert.Equal(t, "https://wrong.example.com/verify/"+card.ID, res.Reissues[0].OldURL)
}
