package participant

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"proofmeet/internal/fault"
)

// Repository persists participants in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create enrolls a participant. Case numbers are unique per court.
func (r *Repository) Create(ctx context.Context, p Participant) (Participant, error) {
	if p.CaseNumber == "" || p.OfficerID == "" {
		return Participant{}, fault.Errorf(fault.ErrInvalidInput, "case number and officer required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO participants (id, case_number, name, officer_id, required_sessions, period_days)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, p.ID, p.CaseNumber, p.Name, p.OfficerID, p.RequiredSessions, p.PeriodDays)
	if err := row.Scan(&p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Participant{}, fault.Errorf(fault.ErrConflict, "case number %s already enrolled", p.CaseNumber)
		}
		return Participant{}, err
	}
	return p, nil
}

// Get returns a participant by id.
func (r *Repository) Get(ctx context.Context, id string) (Participant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, case_number, name, officer_id, required_sessions, period_days, created_at
		FROM participants WHERE id = $1
	`, id)
	var p Participant
	if err := row.Scan(&p.ID, &p.CaseNumber, &p.Name, &p.OfficerID, &p.RequiredSessions, &p.PeriodDays, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Participant{}, fault.Errorf(fault.ErrNotFound, "participant %s", id)
		}
		return Participant{}, err
	}
	return p, nil
}

// List returns participants, optionally filtered by supervising officer.
func (r *Repository) List(ctx context.Context, officerID string) ([]Participant, error) {
	query := `
		SELECT id, case_number, name, officer_id, required_sessions, period_days, created_at
		FROM participants`
	args := []any{}
	if officerID != "" {
		query += ` WHERE officer_id = $1`
		args = append(args, officerID)
	}
	query += ` ORDER BY case_number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.CaseNumber, &p.Name, &p.OfficerID, &p.RequiredSessions, &p.PeriodDays, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// AssignOfficer moves a participant to a different supervising officer.
func (r *Repository) AssignOfficer(ctx context.Context, id, officerID string) error {
	if officerID == "" {
		return fault.Errorf(fault.ErrInvalidInput, "officer id required")
	}
	res, err := r.db.ExecContext(ctx, `UPDATE participants SET officer_id = $2 WHERE id = $1`, id, officerID)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// UpdateWindow changes the compliance window configuration.
func (r *Repository) UpdateWindow(ctx context.Context, id string, requiredSessions, periodDays int) error {
	if requiredSessions < 0 || periodDays <= 0 {
		return fault.Errorf(fault.ErrInvalidInput, "required=%d period=%d", requiredSessions, periodDays)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE participants SET required_sessions = $2, period_days = $3 WHERE id = $1
	`, id, requiredSessions, periodDays)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.Errorf(fault.ErrNotFound, "participant %s", id)
	}
	return nil
}

// isUniqueViolation matches Postgres error code 23505 without depending on
// driver error types directly.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}
