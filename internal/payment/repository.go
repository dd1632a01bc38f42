package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Repository is the persistence surface the Service depends on, kept
// narrow and non-Tx so service-level tests can fake it instead of
// standing up a real database (the same lesson applied in
// internal/booking.Repository).
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	GetByID(ctx context.Context, id uint64) (*Payment, error)
	GetLatestByBookingID(ctx context.Context, bookingID uint64) (*Payment, error)
	GetByGatewayTransactionID(ctx context.Context, txID string) (*Payment, error)
	MarkProcessing(ctx context.Context, id uint64, gatewayTransactionID, paymentURL string) error
	// CompleteIfNotTerminal atomically transitions the payment matching
	// gatewayTransactionID to completed, guarded by {status != completed}
	// (spec.md §4.E handle-webhook step 4, the sole cross-process race
	// control). It reports whether the guard matched and the row moved.
	CompleteIfNotTerminal(ctx context.Context, gatewayTransactionID string, paidAt time.Time) (bool, uint64, error)
	// FailIfNotTerminal atomically transitions the payment matching
	// gatewayTransactionID to failed, guarded by {status != completed}.
	FailIfNotTerminal(ctx context.Context, gatewayTransactionID string) (bool, uint64, error)
}

// MySQLRepository is the production Repository backed by the
// payments table.
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository constructs a MySQLRepository.
func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

const paymentSelectColumns = `id, booking_id, user_id, idempotency_key, amount_cents, currency, payment_method,
	status, gateway_transaction_id, payment_url, expires_at, attempt_count, version, paid_at, created_at, updated_at`

func scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	var gatewayTxID sql.NullString
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.IdempotencyKey, &p.AmountCents, &p.Currency, &p.PaymentMethod,
		&p.Status, &gatewayTxID, &p.PaymentURL, &p.ExpiresAt, &p.AttemptCount, &p.Version, &paidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if gatewayTxID.Valid {
		p.GatewayTransactionID = &gatewayTxID.String
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a pending payment. On an idempotency_key collision
// against a concurrent call that won the race, it surfaces that error
// so the caller can re-read the winning row (spec.md §4.E step 4).
func (r *MySQLRepository) Create(ctx context.Context, p *Payment) error {
	const q = `INSERT INTO payments
		(booking_id, user_id, idempotency_key, amount_cents, currency, payment_method, status,
		 expires_at, attempt_count, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, q, p.BookingID, p.UserID, p.IdempotencyKey, p.AmountCents, p.Currency,
		p.PaymentMethod, StatusPending, p.ExpiresAt, 0, 1, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.Status = StatusPending
	p.AttemptCount = 0
	p.Version = 1
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// GetByIdempotencyKey looks up a payment by its unique idempotency key.
func (r *MySQLRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentSelectColumns+` FROM payments WHERE idempotency_key = ?`, key)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByID retrieves a payment by id.
func (r *MySQLRepository) GetByID(ctx context.Context, id uint64) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentSelectColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetLatestByBookingID returns the most recently created payment for
// a booking, regardless of status, so the caller can branch on
// whether it is completed, still in-flight, or terminal-failed
// (spec.md §4.E create-payment step 3).
func (r *MySQLRepository) GetLatestByBookingID(ctx context.Context, bookingID uint64) (*Payment, error) {
	const q = `SELECT ` + paymentSelectColumns + ` FROM payments
		WHERE booking_id = ? ORDER BY id DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, q, bookingID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByGatewayTransactionID looks up the payment a webhook callback refers to.
func (r *MySQLRepository) GetByGatewayTransactionID(ctx context.Context, txID string) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentSelectColumns+` FROM payments WHERE gateway_transaction_id = ?`, txID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// MarkProcessing records the gateway's response on a freshly created
// payment (spec.md §4.E create-payment step 5).
func (r *MySQLRepository) MarkProcessing(ctx context.Context, id uint64, gatewayTransactionID, paymentURL string) error {
	const q = `UPDATE payments SET status = ?, gateway_transaction_id = ?, payment_url = ?, attempt_count = attempt_count + 1, version = version + 1, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, StatusProcessing, gatewayTransactionID, paymentURL, time.Now().UTC(), id)
	return err
}

// CompleteIfNotTerminal implements the atomic {status != completed} ->
// completed guard that is the sole cross-process race control between
// duplicate webhook deliveries (spec.md §4.E step 4 "success" branch).
func (r *MySQLRepository) CompleteIfNotTerminal(ctx context.Context, gatewayTransactionID string, paidAt time.Time) (bool, uint64, error) {
	const q = `UPDATE payments SET status = ?, paid_at = ?, version = version + 1, updated_at = ?
		WHERE gateway_transaction_id = ? AND status != ?`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, q, StatusCompleted, paidAt, now, gatewayTransactionID, StatusCompleted)
	if err != nil {
		return false, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if affected == 0 {
		return false, 0, nil
	}
	p, err := r.GetByGatewayTransactionID(ctx, gatewayTransactionID)
	if err != nil {
		return false, 0, err
	}
	return true, p.BookingID, nil
}

// FailIfNotTerminal implements the atomic {status != completed} ->
// failed guard (spec.md §4.E step 4 "failed" branch).
func (r *MySQLRepository) FailIfNotTerminal(ctx context.Context, gatewayTransactionID string) (bool, uint64, error) {
	p, err := r.GetByGatewayTransactionID(ctx, gatewayTransactionID)
	if err != nil {
		return false, 0, err
	}
	const q = `UPDATE payments SET status = ?, version = version + 1, updated_at = ?
		WHERE gateway_transaction_id = ? AND status != ?`
	res, err := r.db.ExecContext(ctx, q, StatusFailed, time.Now().UTC(), gatewayTransactionID, StatusCompleted)
	if err != nil {
		return false, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	return affected > 0, p.BookingID, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

var _ Repository = (*MySQLRepository)(nil)
