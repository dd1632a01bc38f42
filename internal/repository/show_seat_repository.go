package repository // repository for show seat persistence

import (
	"context" // context for controlling query lifetime
	"database/sql" // sql provides DB interfaces
)

// ShowSeat is the authoritative *pricing and seat-type* snapshot for a
// seat within a show — never the authoritative live status. Per
// spec.md §9 Design Notes, the KV-script engine (internal/engine) owns
// held/booked state; this table is read-only metadata the booking
// orchestrator resolves (seat_id) -> (seat_type, price_cents) against,
// and the source used to seed the engine's live seat map at show
// creation time.
type ShowSeat struct {
	ShowID     uint64
	SeatID     uint64
	SeatType   string
	PriceCents uint32
}

// ShowSeatRepo encapsulates database operations for show_seats.
type ShowSeatRepo struct {
	db *sql.DB
}

// NewShowSeatRepo constructs a ShowSeatRepo given a DB handle.
func NewShowSeatRepo(db *sql.DB) *ShowSeatRepo {
	return &ShowSeatRepo{db: db}
}

// CreateBulk inserts the pricing/type snapshot for every seat of a show
// in one statement, at show-creation time. This is the only write path
// this repository exposes: it never mutates status after the fact.
func (r *ShowSeatRepo) CreateBulk(ctx context.Context, seats []ShowSeat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO show_seats (show_id, seat_id, seat_type, price_cents) VALUES `
	args := make([]interface{}, 0, len(seats)*4)
	for i, ss := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, ss.ShowID, ss.SeatID, ss.SeatType, ss.PriceCents)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByShow returns the full pricing/type snapshot for a show, used to
// seed the engine's live seat map (spec.md §4.B Initialization).
func (r *ShowSeatRepo) GetByShow(ctx context.Context, showID uint64) ([]ShowSeat, error) {
	const q = `SELECT show_id, seat_id, seat_type, price_cents FROM show_seats WHERE show_id = ?`
	rows, err := r.db.QueryContext(ctx, q, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ShowSeat
	for rows.Next() {
		var ss ShowSeat
		if err := rows.Scan(&ss.ShowID, &ss.SeatID, &ss.SeatType, &ss.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// GetBySeatIDs resolves (seat_type, price_cents) for a specific set of
// seats within a show. Used by hold-seats (spec.md §4.D step 4) to
// compute price and reject unknown seats with INVALID_SEAT. This is a
// read against a pricing snapshot table nothing else in this service
// mutates, so it needs no transaction of its own.
func (r *ShowSeatRepo) GetBySeatIDs(ctx context.Context, showID uint64, seatIDs []uint64) (map[uint64]ShowSeat, error) {
	out := make(map[uint64]ShowSeat, len(seatIDs))
	if len(seatIDs) == 0 {
		return out, nil
	}
	query := `SELECT seat_id, seat_type, price_cents FROM show_seats WHERE show_id = ? AND seat_id IN (`
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, showID)
	for i, sid := range seatIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, sid)
	}
	query += ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ss ShowSeat
		ss.ShowID = showID
		if err := rows.Scan(&ss.SeatID, &ss.SeatType, &ss.PriceCents); err != nil {
			return nil, err
		}
		out[ss.SeatID] = ss
	}
	return out, rows.Err()
}
