package engine

// SeatSeed is one seat's pricing/type snapshot used to initialize a
// showtime's live seat map (spec.md §4.B Initialization).
type SeatSeed struct {
	SeatID   string `json:"seat_id"`
	SeatType string `json:"seat_type"`
}

// SeatRequest is one seat a caller wants to reserve.
type SeatRequest struct {
	SeatID   string `json:"seat_id"`
	SeatType string `json:"seat_type"`
}

// UnavailableSeat explains why a single seat could not be reserved.
type UnavailableSeat struct {
	SeatID string `json:"seat_id"`
	Reason string `json:"reason"`
}

// FailedSeat explains why a single seat could not be confirmed,
// released or extended.
type FailedSeat struct {
	SeatID string `json:"seat_id"`
	Reason string `json:"reason"`
}

// ReserveResult is batch-reserve's outcome (spec.md §4.B).
type ReserveResult struct {
	Success     bool              `json:"success"`
	Reserved    int               `json:"reserved"`
	ExpiresAt   int64             `json:"expires_at"`
	Unavailable []UnavailableSeat `json:"unavailable"`
}

// ConfirmResult is confirm-seats' outcome.
type ConfirmResult struct {
	Confirmed []string     `json:"confirmed"`
	Failed    []FailedSeat `json:"failed"`
}

// ReleaseResult is release-seats' outcome.
type ReleaseResult struct {
	Released []string     `json:"released"`
	Failed   []FailedSeat `json:"failed"`
}

// CleanupResult is cleanup-expired-holds' outcome.
type CleanupResult struct {
	Released []string `json:"released"`
	Count    int      `json:"count"`
}

// SeatStatus is one seat's observable state from get-seats-status.
type SeatStatus struct {
	SeatID           string `json:"seat_id"`
	Status           string `json:"status"`
	SeatType         string `json:"seat_type"`
	BookingID        string `json:"booking_id,omitempty"`
	RemainingSeconds int64  `json:"remaining_seconds,omitempty"`
}

// StatusResult is get-seats-status' outcome.
type StatusResult struct {
	Seats     []SeatStatus `json:"seats"`
	Available int64        `json:"available"`
}

// ExtendResult is extend-hold's outcome.
type ExtendResult struct {
	Extended []string     `json:"extended"`
	Failed   []FailedSeat `json:"failed"`
}

type invalidInputPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// seatRecord mirrors the JSON shape a Lua script stores per seat_id
// field in the seats:{showtime_id} hash. Used only for seeding; the
// scripts themselves never decode through this Go type.
type seatRecord struct {
	Status     string `json:"status"`
	SeatType   string `json:"seat_type"`
	BookingID  string `json:"booking_id,omitempty"`
	HeldUntil  int64  `json:"held_until,omitempty"`
	ReservedAt int64  `json:"reserved_at,omitempty"`
}
