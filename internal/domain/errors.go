package domain

import "errors"

var (
	// ErrInvalidCoordinate is returned when a latitude or longitude is NaN or infinite.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrZoneSourceUnavailable is returned when the external danger-zone source
	// could not be fetched within its deadline. It is never fatal: the last good
	// zone snapshot stays in use.
	ErrZoneSourceUnavailable = errors.New("zone source unavailable")
)
