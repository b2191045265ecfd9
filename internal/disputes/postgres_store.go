package disputes

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists dispute records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the disputes table. The partial unique index mirrors the
// service-level at-most-one-open invariant at the storage layer.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS disputes (
			id              VARCHAR(36) PRIMARY KEY,
			payment_id      VARCHAR(36) NOT NULL,
			opened_by_role  VARCHAR(12) NOT NULL,
			opened_by_id    VARCHAR(36) NOT NULL,
			reason          VARCHAR(500) NOT NULL,
			details         TEXT NOT NULL,
			evidence_ref    VARCHAR(255),
			status          VARCHAR(25) NOT NULL,
			resolution_note TEXT,
			created_at      TIMESTAMPTZ NOT NULL,
			resolved_at     TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_disputes_payment ON disputes(payment_id);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_disputes_open_payment
			ON disputes(payment_id)
			WHERE status IN ('open', 'under_review');
	`)
	return err
}

const disputeColumns = `id, payment_id, opened_by_role, opened_by_id,
		       reason, details, evidence_ref, status, resolution_note,
		       created_at, resolved_at`

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO disputes (
			id, payment_id, opened_by_role, opened_by_id,
			reason, details, evidence_ref, status, resolution_note,
			created_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.PaymentID, string(d.OpenedByRole), d.OpenedByID,
		d.Reason, d.Details, nullString(d.EvidenceRef), string(d.Status),
		nullString(d.ResolutionNote), d.CreatedAt, nullTime(d.ResolvedAt),
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)

	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE disputes SET
			status = $1, resolution_note = $2, resolved_at = $3
		WHERE id = $4`,
		string(d.Status), nullString(d.ResolutionNote), nullTime(d.ResolvedAt), d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDisputeNotFound
	}
	return nil
}

func (p *PostgresStore) GetOpenByPayment(ctx context.Context, paymentID string) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE payment_id = $1 AND status IN ('open', 'under_review')`, paymentID)

	d, err := scanDispute(row)
	if err == sql.ErrNoRows {
		return nil, ErrDisputeNotFound
	}
	return d, err
}

func (p *PostgresStore) ListByPayment(ctx context.Context, paymentID string) ([]*Dispute, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+disputeColumns+`
		FROM disputes
		WHERE payment_id = $1
		ORDER BY created_at DESC`, paymentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDispute(s scanner) (*Dispute, error) {
	d := &Dispute{}
	var (
		role        string
		status      string
		evidenceRef sql.NullString
		note        sql.NullString
		resolvedAt  sql.NullTime
	)

	err := s.Scan(
		&d.ID, &d.PaymentID, &role, &d.OpenedByID,
		&d.Reason, &d.Details, &evidenceRef, &status, &note,
		&d.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	d.OpenedByRole = Role(role)
	d.Status = Status(status)
	d.EvidenceRef = evidenceRef.String
	d.ResolutionNote = note.String
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}

	return d, nil
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
