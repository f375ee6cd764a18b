package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the admission / ordering flow. Controllers map these to
// HTTP status codes; services wrap them with context via fmt.Errorf and %w.
var (
	ErrAlreadyAdmitted          = errors.New("user already holds a working slot")
	ErrNotAdmitted              = errors.New("user does not hold a live working slot")
	ErrReservationLimitExceeded = errors.New("seat selection exceeds per-user reservation limit")
	ErrLockExpired              = errors.New("seat lock lease expired")
	ErrOrderNotFound            = errors.New("order not found")
	ErrWebhookSignatureInvalid  = errors.New("webhook signature invalid")
	ErrUpstreamUnavailable      = errors.New("downstream service unavailable")
	ErrCompensationFailed       = errors.New("payment compensation failed")
	ErrWindowClosed             = errors.New("ticketing window is not open")
)

// SeatUnavailableError reports which seats blocked an all-or-nothing lock
// attempt. It is a 4xx-equivalent returned synchronously to the caller.
type SeatUnavailableError struct {
	SeatMappingIDs []uint64
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.SeatMappingIDs)
}

// IsSeatUnavailable unwraps err into a SeatUnavailableError when possible.
func IsSeatUnavailable(err error) (*SeatUnavailableError, bool) {
	var su *SeatUnavailableError
	if errors.As(err, &su) {
		return su, true
	}
	return nil, false
}
