package escrow

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists payment records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payments table. The canonical schema lives in
// migrations/; this keeps dev environments working without the migrate step.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id                VARCHAR(36) PRIMARY KEY,
			ticket_id         VARCHAR(36) NOT NULL,
			quote_id          VARCHAR(36) NOT NULL,
			gross_amount      BIGINT NOT NULL,
			commission_rate   INTEGER NOT NULL DEFAULT 0,
			commission_amount BIGINT NOT NULL DEFAULT 0,
			net_amount        BIGINT NOT NULL DEFAULT 0,
			status            VARCHAR(20) NOT NULL,
			released_at       TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL,
			CONSTRAINT chk_gross_positive CHECK (gross_amount > 0),
			CONSTRAINT chk_split_conserved CHECK (
				status <> 'released' OR commission_amount + net_amount = gross_amount
			)
		);

		CREATE INDEX IF NOT EXISTS idx_payments_ticket ON payments(ticket_id);
		CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
	`)
	return err
}

const paymentColumns = `id, ticket_id, quote_id, gross_amount,
		       commission_rate, commission_amount, net_amount,
		       status, released_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, pm *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, ticket_id, quote_id, gross_amount,
			commission_rate, commission_amount, net_amount,
			status, released_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pm.ID, pm.TicketID, pm.QuoteID, pm.GrossAmount,
		pm.CommissionRate, pm.CommissionAmount, pm.NetAmount,
		string(pm.Status), nullTime(pm.ReleasedAt), pm.CreatedAt, pm.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)

	pm, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return pm, err
}

func (p *PostgresStore) Update(ctx context.Context, pm *Payment) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET
			commission_rate = $1, commission_amount = $2, net_amount = $3,
			status = $4, released_at = $5, updated_at = $6
		WHERE id = $7`,
		pm.CommissionRate, pm.CommissionAmount, pm.NetAmount,
		string(pm.Status), nullTime(pm.ReleasedAt), pm.UpdatedAt,
		pm.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (p *PostgresStore) ListByTicket(ctx context.Context, ticketID string) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ticket_id = $1
		ORDER BY created_at DESC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanPayments(rows)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanPayments(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(s scanner) (*Payment, error) {
	pm := &Payment{}
	var (
		status     string
		releasedAt sql.NullTime
	)

	err := s.Scan(
		&pm.ID, &pm.TicketID, &pm.QuoteID, &pm.GrossAmount,
		&pm.CommissionRate, &pm.CommissionAmount, &pm.NetAmount,
		&status, &releasedAt, &pm.CreatedAt, &pm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pm.Status = Status(status)
	if releasedAt.Valid {
		pm.ReleasedAt = &releasedAt.Time
	}

	return pm, nil
}

func scanPayments(rows *sql.Rows) ([]*Payment, error) {
	var result []*Payment
	for rows.Next() {
		pm, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pm)
	}
	return result, rows.Err()
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
