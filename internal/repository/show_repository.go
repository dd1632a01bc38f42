// Package repository contains data access logic for Show domain operations.
// This file defines the Show model and the read-only lookups the booking
// orchestrator needs: resolve a showtime's status/start time.
// Full show authoring (create/update/delete, scheduling conflicts) is an
// external collaborator concern per spec.md §1 Non-goals.
package repository

import (
	"context"
	"database/sql"
	"errors"
)

// Show is a scheduled screening of a movie in a particular hall.
// StartsAt/EndsAt are stored as "2006-01-02 15:04:05" UTC strings.
type Show struct {
	ID             uint64
	HallID         uint64
	Title          string
	StartsAt       string
	EndsAt         string
	BasePriceCents uint32
	Status         string // SCHEDULED | CANCELLED | FINISHED
	CreatedAt      string
	UpdatedAt      string
}

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ShowRepo manages read access to shows. Its DB handle is not exported.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

// GetByID retrieves a show by its ID. Returns ErrShowNotFound if there is
// no matching row.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*Show, error) {
	const q = `SELECT id, hall_id, title, starts_at, ends_at, base_price_cents, status, created_at, updated_at FROM shows WHERE id = ?`
	var s Show
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.HallID, &s.Title, &s.StartsAt, &s.EndsAt, &s.BasePriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}
	return &s, nil
}
