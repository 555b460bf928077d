package store

import (
	"errors"

	"github.com/emrgen/catalog/internal/query"
)

var (
	// ErrNotFound is returned when a version or mapping does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConvergenceConflict is returned when a new version would share its
	// logical ID and entity version with an existing version of different
	// content.
	ErrConvergenceConflict = errors.New("convergence conflict")
	// ErrMappingConflict is returned when an owner already maps another
	// version of the same logical ID.
	ErrMappingConflict = errors.New("mapping conflict")

	ErrInvalidArgument        = query.ErrInvalidArgument
	ErrInvalidOrderKey        = query.ErrInvalidOrderKey
	ErrStateSizeLimitExceeded = query.ErrStateSizeLimitExceeded
)
