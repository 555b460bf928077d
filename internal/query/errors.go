package query

import "errors"

var (
	// ErrInvalidArgument is returned when a caller supplies an unusable value,
	// such as a blank identifier or a non-positive page size.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidOrderKey is returned when an ordering names an unknown column.
	ErrInvalidOrderKey = errors.New("invalid order key")
	// ErrStateSizeLimitExceeded is returned when the IN-list parameters of one
	// statement exceed the configured parameter limit.
	ErrStateSizeLimitExceeded = errors.New("state size limit exceeded")
)
