// Package idempotency deduplicates retried mutating requests by
// (idempotency_key, user_id): a retried hold or create-payment call
// with the same key and body returns the first call's cached response
// instead of running the operation twice (spec.md §4.C).
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Resource types a record can dedupe, per spec.md §3.
const (
	ResourceBooking = "booking"
	ResourcePayment = "payment"
	ResourceRefund  = "refund"
)

// Record statuses, per spec.md §3.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrKeyReusedDifferentBody is returned by Check when an existing
// record under (key, user_id) was created for a different request
// body than the one presented now.
var ErrKeyReusedDifferentBody = errors.New("idempotency: key reused with a different request body")

// ErrRequestInFlight is returned by Check when another request with
// the same key is still processing.
var ErrRequestInFlight = errors.New("idempotency: request already in flight")

// Record is one durable idempotency row.
type Record struct {
	ID             uint64
	IdempotencyKey string
	UserID         uint64
	RequestPath    string
	RequestHash    string
	ResourceType   string
	Status         string
	ResponseStatus int
	ResponseBody   []byte
	ResourceID     *string
	ErrorMessage   string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CheckResult is what Check hands back to a caller: either a brand
// new record it should proceed under, or a cached outcome to replay.
type CheckResult struct {
	New          bool
	CachedStatus int
	CachedBody   []byte
	Record       *Record
}

// Repository is the narrow surface internal/booking and
// internal/payment depend on, so they can be tested against an
// in-process fake instead of a real database connection.
type Repository interface {
	Check(ctx context.Context, key string, userID uint64, path, requestHash, resourceType string) (*CheckResult, error)
	Complete(ctx context.Context, key string, userID uint64, statusCode int, body []byte, resourceID *string) error
	Fail(ctx context.Context, key string, userID uint64, errMsg string, statusCode int, body []byte) error
}

// Store persists idempotency records over MySQL via the compound
// unique index (idempotency_key, user_id), matching the teacher's
// *sql.DB-backed repository style.
type Store struct {
	db  *sql.DB
	ttl time.Duration
}

// NewStore constructs a Store with the TTL new records are stamped
// with (spec.md §6 idempotency_ttl, default 24h).
func NewStore(db *sql.DB, ttl time.Duration) *Store {
	return &Store{db: db, ttl: ttl}
}

var _ Repository = (*Store)(nil)

// Check finds or creates the record for (key, userID). It inserts
// optimistically and, on a duplicate-key race from a concurrent
// caller, re-reads once rather than upserting — this keeps the race
// path explicit and testable (spec.md §4.C "loop once and re-read").
func (s *Store) Check(ctx context.Context, key string, userID uint64, path, requestHash, resourceType string) (*CheckResult, error) {
	rec, err := s.insert(ctx, key, userID, path, requestHash, resourceType)
	if err != nil {
		if isDuplicateKey(err) {
			rec, err = s.getByKeyTx(ctx, nil, key, userID)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else {
		return &CheckResult{New: true, Record: rec}, nil
	}

	if rec.RequestHash != requestHash {
		return nil, ErrKeyReusedDifferentBody
	}
	switch rec.Status {
	case StatusCompleted:
		return &CheckResult{New: false, CachedStatus: rec.ResponseStatus, CachedBody: rec.ResponseBody, Record: rec}, nil
	case StatusFailed:
		return &CheckResult{New: false, CachedStatus: rec.ResponseStatus, CachedBody: rec.ResponseBody, Record: rec}, nil
	default:
		return nil, ErrRequestInFlight
	}
}

func (s *Store) insert(ctx context.Context, key string, userID uint64, path, requestHash, resourceType string) (*Record, error) {
	const q = `INSERT INTO idempotency_keys
		(idempotency_key, user_id, request_path, request_hash, resource_type, status, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)
	res, err := s.db.ExecContext(ctx, q, key, userID, path, requestHash, resourceType, StatusProcessing, expiresAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Record{
		ID: uint64(id), IdempotencyKey: key, UserID: userID, RequestPath: path,
		RequestHash: requestHash, ResourceType: resourceType, Status: StatusProcessing,
		ExpiresAt: expiresAt, CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (s *Store) getByKeyTx(ctx context.Context, tx *sql.Tx, key string, userID uint64) (*Record, error) {
	const q = `SELECT id, idempotency_key, user_id, request_path, request_hash, resource_type,
		status, response_status, response_body, resource_id, error_message, expires_at, created_at, updated_at
		FROM idempotency_keys WHERE idempotency_key = ? AND user_id = ?`
	row := queryRow(ctx, s.db, tx, q, key, userID)

	var rec Record
	var responseBody sql.RawBytes
	var resourceID sql.NullString
	var errorMessage sql.NullString
	var responseStatus sql.NullInt64
	if err := row.Scan(&rec.ID, &rec.IdempotencyKey, &rec.UserID, &rec.RequestPath, &rec.RequestHash,
		&rec.ResourceType, &rec.Status, &responseStatus, &responseBody, &resourceID, &errorMessage,
		&rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if len(responseBody) > 0 {
		rec.ResponseBody = append([]byte(nil), responseBody...)
	}
	if resourceID.Valid {
		rec.ResourceID = &resourceID.String
	}
	rec.ErrorMessage = errorMessage.String
	rec.ResponseStatus = int(responseStatus.Int64)
	return &rec, nil
}

// Complete atomically advances a processing record to completed,
// caching the response so a replay can be served without re-running
// the operation. A no-op if the record already advanced past
// processing (another goroutine raced ahead, or this is itself a
// replay of a completion).
func (s *Store) Complete(ctx context.Context, key string, userID uint64, statusCode int, body []byte, resourceID *string) error {
	const q = `UPDATE idempotency_keys
		SET status = ?, response_status = ?, response_body = ?, resource_id = ?, updated_at = ?
		WHERE idempotency_key = ? AND user_id = ? AND status = ?`
	_, err := s.db.ExecContext(ctx, q, StatusCompleted, statusCode, body, resourceID, time.Now().UTC(), key, userID, StatusProcessing)
	return err
}

// Fail atomically advances a processing record to failed, capturing
// both the error message and the encoded response body so a retry
// with the same key can replay the exact same categorized error
// envelope instead of just its status code (spec.md §7 propagation
// policy).
func (s *Store) Fail(ctx context.Context, key string, userID uint64, errMsg string, statusCode int, body []byte) error {
	const q = `UPDATE idempotency_keys
		SET status = ?, response_status = ?, response_body = ?, error_message = ?, updated_at = ?
		WHERE idempotency_key = ? AND user_id = ? AND status = ?`
	_, err := s.db.ExecContext(ctx, q, StatusFailed, statusCode, body, errMsg, time.Now().UTC(), key, userID, StatusProcessing)
	return err
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func queryRow(ctx context.Context, db *sql.DB, tx *sql.Tx, query string, args ...any) rowScanner {
	if tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return db.QueryRowContext(ctx, query, args...)
}
