package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses duration knobs
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints/durations for
// timing knobs.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to sign JWTs

	// Domain knobs, per spec.md §6 EXTERNAL INTERFACES configuration table.
	HoldDuration            time.Duration // seat hold TTL before a booking auto-expires
	PaymentExpiry           time.Duration // payment intent TTL
	IdempotencyTTL          time.Duration // idempotency record retention
	ShowtimeKVTTL           time.Duration // engine's seats:{showtime_id}/available:{showtime_id} TTL
	ReaperPeriod            time.Duration // expiry reaper tick interval
	MaxSeatsPerBooking      int           // cap on seats per booking request
	BatchCleanupParallelism int           // concurrency cap for cross-showtime cleanup sweeps
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message. Domain knobs fall back
// to the spec's defaults when unset.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),    // environment (dev/test/prod)
		Port:      must("APP_PORT"),   // port to bind the HTTP server
		DBUser:    must("DB_USER"),    // database user
		DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:    must("DB_HOST"),    // database host
		DBPort:    must("DB_PORT"),    // database port
		DBName:    must("DB_NAME"),    // database name
		JWTSecret: must("JWT_SECRET"), // secret used for signing JWTs

		HoldDuration:            envDurFatal("HOLD_DURATION", 10*time.Minute),
		PaymentExpiry:           envDurFatal("PAYMENT_EXPIRY", 15*time.Minute),
		IdempotencyTTL:          envDurFatal("IDEMPOTENCY_TTL", 24*time.Hour),
		ShowtimeKVTTL:           envDurFatal("SHOWTIME_KV_TTL", 7*24*time.Hour),
		ReaperPeriod:            envDurFatal("REAPER_PERIOD", time.Minute),
		MaxSeatsPerBooking:      envIntFatal("MAX_SEATS_PER_BOOKING", 10),
		BatchCleanupParallelism: envIntFatal("BATCH_CLEANUP_PARALLELISM", 10),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envDurFatal and envIntFatal are the domain-knob loaders for Load(): unlike
// ratelimit.go's envDur/envInt (which silently fall back to a default on a
// malformed value), a malformed domain knob is a startup misconfiguration
// worth failing fast on, while a missing one is not.
func envDurFatal(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}

func envIntFatal(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
