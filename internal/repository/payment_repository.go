package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	const query = `
INSERT INTO pending_payments (invoice_id, user_id, tariff, amount, created_at)
VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, intent.InvoiceID, intent.UserID, string(intent.Tariff), intent.Amount, intent.CreatedAt); err != nil {
		return fmt.Errorf("insert pending payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) Find(ctx context.Context, invoiceID int64) (*models.PaymentIntent, error) {
	const query = `
SELECT invoice_id, user_id, tariff, amount, created_at
FROM pending_payments WHERE invoice_id = ?`
	row := r.db.QueryRowContext(ctx, query, invoiceID)
	var intent models.PaymentIntent
	var tariff string
	if err := row.Scan(&intent.InvoiceID, &intent.UserID, &tariff, &intent.Amount, &intent.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan pending payment: %w", err)
	}
	intent.Tariff = models.Tariff(tariff)
	return &intent, nil
}

// Delete removes the intent and reports whether this call was the one that
// removed it. The rows-affected result is what makes reconciliation
// credit-exactly-once under concurrent confirms.
func (r *PaymentRepository) Delete(ctx context.Context, invoiceID int64) (bool, error) {
	const query = `DELETE FROM pending_payments WHERE invoice_id = ?`
	res, err := r.db.ExecContext(ctx, query, invoiceID)
	if err != nil {
		return false, fmt.Errorf("delete pending payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pending payment rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *PaymentRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM pending_payments WHERE created_at < ?`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep pending payments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rows affected: %w", err)
	}
	return affected, nil
}
