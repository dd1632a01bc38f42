package booking

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Repository is the persistence surface the Service depends on, kept
// narrow so service-level tests can fake it instead of standing up a
// real database. Create manages its own transaction internally (the
// booking row and its seat snapshot must land together); every other
// method is a single-row read or update that needs no transaction of
// its own.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
	GetByID(ctx context.Context, id uint64) (*Booking, error)
	MarkConfirmed(ctx context.Context, id uint64, partial bool) error
	MarkCancelled(ctx context.Context, id uint64, reason string) error
	MarkExpired(ctx context.Context, id uint64) error
	ListExpiredPending(ctx context.Context, before time.Time) ([]Booking, error)
}

// MySQLRepository is the production Repository backed by the
// bookings/booking_seats tables, grounded on the teacher's
// *sql.DB-backed repository style (internal/repository/*_repository.go).
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository constructs a MySQLRepository.
func NewMySQLRepository(db *sql.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

// Create inserts a pending booking and its seat snapshot inside one
// transaction, retrying booking_code generation up to
// maxBookingCodeAttempts times on a unique-index collision (spec.md
// §9 Open Question resolution).
func (r *MySQLRepository) Create(ctx context.Context, b *Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for attempt := 0; attempt < maxBookingCodeAttempts; attempt++ {
		code, err := GenerateBookingCode()
		if err != nil {
			return err
		}
		b.BookingCode = code

		const q = `INSERT INTO bookings
			(booking_code, user_id, showtime_id, total_amount_cents, discount_cents, final_amount_cents,
			 currency, status, held_at, hold_expires_at, idempotency_key, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, q, b.BookingCode, b.UserID, b.ShowtimeID, b.TotalAmountCents,
			b.DiscountCents, b.FinalAmountCents, b.Currency, StatusPending, b.HeldAt, b.HoldExpiresAt,
			b.IdempotencyKey, now, now)
		if err != nil {
			switch duplicateKeyColumn(err) {
			case "booking_code":
				continue
			case "idempotency_key":
				return ErrIdempotencyKeyConflict
			default:
				// Not a 1062, or a 1062 we can't attribute to either
				// known unique index. Safer to surface it than to
				// silently retry against the wrong assumption.
				return err
			}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		b.ID = uint64(id)
		b.Status = StatusPending
		b.CreatedAt, b.UpdatedAt = now, now

		if err := r.insertSeatsTx(ctx, tx, b.ID, b.Seats); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		committed = true
		return nil
	}
	return ErrBookingCodeExhausted
}

func (r *MySQLRepository) insertSeatsTx(ctx context.Context, tx *sql.Tx, bookingID uint64, seats []BookingSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id, seat_type, price_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*4)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, bookingID, s.SeatID, s.SeatType, s.PriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

const bookingSelectColumns = `id, booking_code, user_id, showtime_id, total_amount_cents, discount_cents,
	final_amount_cents, currency, status, held_at, hold_expires_at, confirmed_at, cancelled_at,
	cancellation_reason, payment_id, partially_confirmed, idempotency_key, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*Booking, error) {
	var b Booking
	var confirmedAt, cancelledAt sql.NullTime
	var cancellationReason sql.NullString
	var paymentID sql.NullInt64
	err := row.Scan(&b.ID, &b.BookingCode, &b.UserID, &b.ShowtimeID, &b.TotalAmountCents, &b.DiscountCents,
		&b.FinalAmountCents, &b.Currency, &b.Status, &b.HeldAt, &b.HoldExpiresAt, &confirmedAt, &cancelledAt,
		&cancellationReason, &paymentID, &b.PartiallyConfirmed, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		b.ConfirmedAt = &confirmedAt.Time
	}
	if cancelledAt.Valid {
		b.CancelledAt = &cancelledAt.Time
	}
	b.CancellationReason = cancellationReason.String
	if paymentID.Valid {
		v := uint64(paymentID.Int64)
		b.PaymentID = &v
	}
	return &b, nil
}

// GetByIdempotencyKey rebuilds a booking from its durable record,
// used by hold-seats step 2 to detect a completed duplicate even if
// the idempotency cache itself was evicted.
func (r *MySQLRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingSelectColumns+` FROM bookings WHERE idempotency_key = ?`, key)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	seats, err := r.seatsByBookingID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Seats = seats
	return b, nil
}

// GetByID retrieves a booking and its seat snapshot by id.
func (r *MySQLRepository) GetByID(ctx context.Context, id uint64) (*Booking, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+bookingSelectColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	seats, err := r.seatsByBookingID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.Seats = seats
	return b, nil
}

func (r *MySQLRepository) seatsByBookingID(ctx context.Context, bookingID uint64) ([]BookingSeat, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT booking_id, seat_id, seat_type, price_cents FROM booking_seats WHERE booking_id = ?`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookingSeat
	for rows.Next() {
		var s BookingSeat
		if err := rows.Scan(&s.BookingID, &s.SeatID, &s.SeatType, &s.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkConfirmed transitions a booking to confirmed, recording whether
// confirm-seats only partially succeeded (spec.md §4.D step 4, §9
// "Partial confirm" audit note).
func (r *MySQLRepository) MarkConfirmed(ctx context.Context, id uint64, partial bool) error {
	const q = `UPDATE bookings SET status = ?, confirmed_at = ?, partially_confirmed = ?, updated_at = ? WHERE id = ?`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, q, StatusConfirmed, now, partial, now, id)
	return err
}

// MarkCancelled transitions a booking to cancelled with a reason
// (user cancel, payment failure).
func (r *MySQLRepository) MarkCancelled(ctx context.Context, id uint64, reason string) error {
	const q = `UPDATE bookings SET status = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = ? WHERE id = ?`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, q, StatusCancelled, now, reason, now, id)
	return err
}

// MarkExpired transitions a booking to expired, used by the reaper.
func (r *MySQLRepository) MarkExpired(ctx context.Context, id uint64) error {
	const q = `UPDATE bookings SET status = ?, cancelled_at = ?, cancellation_reason = ?, updated_at = ? WHERE id = ?`
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, q, StatusExpired, now, "Hold expired", now, id)
	return err
}

// ListExpiredPending returns every pending booking whose hold has
// passed, for the reaper to sweep (spec.md §4.F).
func (r *MySQLRepository) ListExpiredPending(ctx context.Context, before time.Time) ([]Booking, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+bookingSelectColumns+` FROM bookings WHERE status = ? AND hold_expires_at < ?`, StatusPending, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		seats, err := r.seatsByBookingID(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		b.Seats = seats
		out = append(out, *b)
	}
	return out, rows.Err()
}

// duplicateKeyColumn inspects a MySQL 1062 error and reports which
// unique index it collided on, so Create can tell a booking_code
// retry-worthy collision apart from a genuine idempotency_key race.
// MySQL formats the message as `Duplicate entry '...' for key
// 'bookings.idempotency_key'` (8.0) or `'idempotency_key'` (5.7), so a
// substring check on the column name is enough without parsing the
// full key name. Returns "" for a non-1062 error, and "unknown" for a
// 1062 on any other index.
func duplicateKeyColumn(err error) string {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return ""
	}
	if mysqlErr.Number != 1062 {
		return ""
	}
	switch {
	case strings.Contains(mysqlErr.Message, "idempotency_key"):
		return "idempotency_key"
	case strings.Contains(mysqlErr.Message, "booking_code"):
		return "booking_code"
	default:
		return "unknown"
	}
}

var _ Repository = (*MySQLRepository)(nil)
