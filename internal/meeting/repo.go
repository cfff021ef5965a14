package meeting

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"proofmeet/internal/fault"
)

// Repository persists meetings in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new meeting. Planned duration is stored in minutes.
func (r *Repository) Insert(ctx context.Context, m Meeting) (Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO meetings (id, source, topic, scheduled_at, planned_minutes, external_id, join_url, password)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, m.ID, m.Source, m.Topic, m.ScheduledAt, int(m.PlannedDuration.Minutes()), m.ExternalID, m.JoinURL, m.Password)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return Meeting{}, err
	}
	return m, nil
}

// Get returns a meeting by id.
func (r *Repository) Get(ctx context.Context, id string) (Meeting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source, topic, scheduled_at, planned_minutes, external_id, join_url, password, cancelled, created_at
		FROM meetings WHERE id = $1
	`, id)
	return scanMeeting(row)
}

// Cancel flips the cancellation flag; everything else stays immutable.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE meetings SET cancelled = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.Errorf(fault.ErrNotFound, "meeting %s", id)
	}
	return nil
}

// List returns meetings newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Meeting, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, topic, scheduled_at, planned_minutes, external_id, join_url, password, cancelled, created_at
		FROM meetings ORDER BY scheduled_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (Meeting, error) {
	var m Meeting
	var minutes int
	err := row.Scan(&m.ID, &m.Source, &m.Topic, &m.ScheduledAt, &minutes, &m.ExternalID, &m.JoinURL, &m.Password, &m.Cancelled, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Meeting{}, fault.Errorf(fault.ErrNotFound, "meeting")
		}
		return Meeting{}, err
	}
	m.PlannedDuration = time.Duration(minutes) * time.Minute
	return m, nil
}
