package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired idempotency records. MySQL has
// no native TTL index (unlike the source system this was distilled
// from), so the 24h expiry invariant is enforced by this explicit
// sweep instead — the same ticking-goroutine idiom as
// internal/reaper's expiry sweep (spec.md §4.C).
type Sweeper struct {
	store  *Store
	period time.Duration
	log    *zap.Logger
}

// NewSweeper constructs a Sweeper that deletes rows past expires_at
// every period.
func NewSweeper(store *Store, period time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{store: store, period: period, log: log}
}

// Run blocks, sweeping on every tick until ctx is cancelled. Each
// sweep error is logged and the loop continues, matching the
// reaper's "errors logged, loop continues" discipline.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sweepOnce(ctx)
			if err != nil {
				s.log.Error("idempotency sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("idempotency sweep removed expired records", zap.Int64("count", n))
			}
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) (int64, error) {
	const q = `DELETE FROM idempotency_keys WHERE expires_at < ?`
	res, err := s.store.db.ExecContext(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
