// Package engine implements the KV-Script Runtime and the Seat
// Reservation Engine: every live seat-state transition for a showtime
// runs as a single Redis Lua script so a batch of seats is reserved,
// confirmed or released atomically, with no read-then-write race
// between application and store (spec.md §3, §4.A, §4.B).
//
// The runtime is grounded on internal/middleware/ratelimit.go's
// redis.NewScript(...).Run(ctx, rdb, keys, args...) pattern: go-redis
// caches the script's SHA after the first successful EVALSHA and
// silently falls back to a full EVAL (which reloads the script as a
// side effect) whenever the server responds NOSCRIPT, e.g. after a
// Redis restart or FLUSHALL.
package engine

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrInvalidInput is returned when a script rejects its own arguments
// before touching any seat (empty seat list, non-positive duration).
var ErrInvalidInput = errors.New("engine: invalid input")

// Runtime owns the Redis connection and the registered operation
// scripts, and logs every script run that fails. A fallback to a cold
// EVAL is handled inside go-redis and is not logged.
type Runtime struct {
	rdb *redis.Client
	log *zap.Logger

	batchReserve        *redis.Script
	confirmSeats        *redis.Script
	releaseSeats        *redis.Script
	cleanupExpiredHolds *redis.Script
	getSeatsStatus      *redis.Script
	extendHold          *redis.Script
}

// NewRuntime compiles every operation's Lua source into a *redis.Script
// up front. Scripts are not sent to the server until first Run; go-redis
// performs the EVALSHA/EVAL dance transparently.
func NewRuntime(rdb *redis.Client, log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		rdb:                 rdb,
		log:                 log,
		batchReserve:        redis.NewScript(batchReserveScript),
		confirmSeats:        redis.NewScript(confirmSeatsScript),
		releaseSeats:        redis.NewScript(releaseSeatsScript),
		cleanupExpiredHolds: redis.NewScript(cleanupExpiredHoldsScript),
		getSeatsStatus:      redis.NewScript(getSeatsStatusScript),
		extendHold:          redis.NewScript(extendHoldScript),
	}
}

// run executes a script and returns its reply as text; a nil reply
// comes back as "" with no error. A NOSCRIPT miss is not seen here:
// go-redis has already retried with a full EVAL by the time Run
// returns. Any other error is logged with the script name and returned.
func (rt *Runtime) run(ctx context.Context, name string, script *redis.Script, keys []string, args ...interface{}) (string, error) {
	res, err := script.Run(ctx, rt.rdb, keys, args...).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		rt.log.Error("engine: script run failed", zap.String("script", name), zap.Error(err))
		return "", err
	}
	return res, nil
}

// Preload forces every registered script onto the server via SCRIPT
// LOAD, so the first real request after a deploy does not pay for a
// cold EVAL. Safe to call repeatedly; Redis de-duplicates by SHA.
func (rt *Runtime) Preload(ctx context.Context) error {
	scripts := []*redis.Script{
		rt.batchReserve, rt.confirmSeats, rt.releaseSeats,
		rt.cleanupExpiredHolds, rt.getSeatsStatus, rt.extendHold,
	}
	for _, s := range scripts {
		if _, err := s.Load(ctx, rt.rdb).Result(); err != nil {
			return err
		}
	}
	return nil
}
