package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"proofmeet/internal/fault"
)

// Repository persists attendance records in Postgres.
//
// The one-open-record-per-(participant,meeting) invariant is enforced by a
// partial unique index on status = 'IN_PROGRESS', so concurrent joins race
// on the constraint instead of a read-then-write check.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertOpen writes a new IN_PROGRESS record. Returns fault.ErrConflict when
// an open record already exists for the pair.
func (r *Repository) InsertOpen(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = StatusInProgress
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, participant_id, meeting_id, joined_at, status, verification_method)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, rec.ID, rec.ParticipantID, rec.MeetingID, rec.JoinedAt, rec.Status, rec.VerificationMethod)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Record{}, fault.Errorf(fault.ErrConflict, "open attendance exists for participant %s meeting %s", rec.ParticipantID, rec.MeetingID)
		}
		return Record{}, err
	}
	return rec, nil
}

// Get returns a record by id.
func (r *Repository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, participant_id, meeting_id, joined_at, left_at, total_seconds, active_seconds,
		       attendance_percent, status, verification_method, created_at
		FROM attendance_records WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fault.Errorf(fault.ErrNotFound, "attendance record %s", id)
	}
	return rec, err
}

// CloseIfOpen applies the terminal update only if the record is still
// IN_PROGRESS. A concurrent close loses the guard and gets
// fault.ErrInvalidState, so at most one close wins.
func (r *Repository) CloseIfOpen(ctx context.Context, closed Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET left_at = $2, total_seconds = $3, active_seconds = $4, attendance_percent = $5, status = $6
		WHERE id = $1 AND status = 'IN_PROGRESS'
		RETURNING id, participant_id, meeting_id, joined_at, left_at, total_seconds, active_seconds,
		          attendance_percent, status, verification_method, created_at
	`, closed.ID, closed.LeftAt, int64(closed.TotalDuration.Seconds()), int64(closed.ActiveDuration.Seconds()),
		closed.AttendancePercent, closed.Status)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fault.Errorf(fault.ErrInvalidState, "attendance record %s is not open", closed.ID)
	}
	return rec, err
}

// ListByParticipant returns a participant's records newest first.
func (r *Repository) ListByParticipant(ctx context.Context, participantID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, participant_id, meeting_id, joined_at, left_at, total_seconds, active_seconds,
		       attendance_percent, status, verification_method, created_at
		FROM attendance_records
		WHERE participant_id = $1
		ORDER BY joined_at DESC
		LIMIT $2
	`, participantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListCompletedWithoutCards returns COMPLETED records that no card points
// at, oldest first. This is the recovery query for issuance failures after
// a record already closed.
func (r *Repository) ListCompletedWithoutCards(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.participant_id, a.meeting_id, a.joined_at, a.left_at, a.total_seconds, a.active_seconds,
		       a.attendance_percent, a.status, a.verification_method, a.created_at
		FROM attendance_records a
		LEFT JOIN court_cards c ON c.record_id = a.id
		WHERE a.status = 'COMPLETED' AND c.id IS NULL
		ORDER BY a.joined_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListInWindow returns a participant's records joined within [from, to).
// The compliance evaluator filters statuses itself so the query stays simple.
func (r *Repository) ListInWindow(ctx context.Context, participantID string, from, to time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, participant_id, meeting_id, joined_at, left_at, total_seconds, active_seconds,
		       attendance_percent, status, verification_method, created_at
		FROM attendance_records
		WHERE participant_id = $1 AND joined_at >= $2 AND joined_at < $3
		ORDER BY joined_at
	`, participantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var totalSec, activeSec int64
	err := row.Scan(&rec.ID, &rec.ParticipantID, &rec.MeetingID, &rec.JoinedAt, &rec.LeftAt,
		&totalSec, &activeSec, &rec.AttendancePercent, &rec.Status, &rec.VerificationMethod, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.TotalDuration = time.Duration(totalSec) * time.Second
	rec.ActiveDuration = time.Duration(activeSec) * time.Second
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
