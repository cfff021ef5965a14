package courtcard

import (
	"context"
	"database/sql"
	"errors"

	"proofmeet/internal/fault"
)

// Repository persists cards in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AllocateSerial increments the per-year counter row and returns a formatted
// serial. The upsert is atomic, so concurrent issuances get distinct numbers.
func (r *Repository) AllocateSerial(ctx context.Context, year int) (string, error) {
	var seq int
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO court_card_serials (year, seq) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET seq = court_card_serials.seq + 1
		RETURNING seq
	`, year)
	if err := row.Scan(&seq); err != nil {
		return "", err
	}
	return FormatSerial(year, seq), nil
}

// Insert writes a new card. The record linkage is unique, so a second card
// for the same attendance record hits the constraint.
func (r *Repository) Insert(ctx context.Context, card Card) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO court_cards (id, record_id, participant_id, meeting_id, issued_at, hash, verify_url, last_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, card.ID, card.RecordID, card.ParticipantID, card.MeetingID, card.IssuedAt, card.Hash, card.VerifyURL, card.LastStatus)
	if isUniqueViolation(err) {
		return fault.Errorf(fault.ErrConflict, "record %s already has a card", card.RecordID)
	}
	return err
}

// Get returns a card with its reissue history, oldest entry first.
func (r *Repository) Get(ctx context.Context, id string) (Card, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, record_id, participant_id, meeting_id, issued_at, hash, verify_url, last_status
		FROM court_cards WHERE id = $1
	`, id)
	var card Card
	err := row.Scan(&card.ID, &card.RecordID, &card.ParticipantID, &card.MeetingID,
		&card.IssuedAt, &card.Hash, &card.VerifyURL, &card.LastStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Card{}, fault.Errorf(fault.ErrNotFound, "card %s", id)
		}
		return Card{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT reissued_at, old_url, new_url FROM court_card_reissues
		WHERE card_id = $1 ORDER BY reissued_at
	`, id)
	if err != nil {
		return Card{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry Reissue
		if err := rows.Scan(&entry.At, &entry.OldURL, &entry.NewURL); err != nil {
			return Card{}, err
		}
		card.Reissues = append(card.Reissues, entry)
	}
	return card, rows.Err()
}

// UpdateVerifyURL swaps the derived URL and appends an audit entry in one
// transaction. The row lock serializes concurrent reissues of the same card.
func (r *Repository) UpdateVerifyURL(ctx context.Context, id, verifyURL string, entry Reissue) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	row := tx.QueryRowContext(ctx, `SELECT verify_url FROM court_cards WHERE id = $1 FOR UPDATE`, id)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fault.Errorf(fault.ErrNotFound, "card %s", id)
		}
		return err
	}
	if current == verifyURL {
		// another reissue already applied the same config
		return tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE court_cards SET verify_url = $2 WHERE id = $1`, id, verifyURL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO court_card_reissues (card_id, reissued_at, old_url, new_url)
		VALUES ($1,$2,$3,$4)
	`, id, entry.At, current, verifyURL); err != nil {
		return err
	}
	return tx.Commit()
}

// SetLastStatus records the most recent validation outcome.
func (r *Repository) SetLastStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE court_cards SET last_status = $2 WHERE id = $1`, id, status)
	return err
}

// ListIDs returns every card id, oldest first, for bulk reissue.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM court_cards ORDER BY issued_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
