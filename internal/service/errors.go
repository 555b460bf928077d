package service

import "errors"

var (
	// ErrMissingEntity is returned when an import carries no entity.
	ErrMissingEntity = errors.New("no entity to import")
	// ErrMissingOwner is returned when an owner scoped call has no owner.
	ErrMissingOwner = errors.New("owner id is required")
)
