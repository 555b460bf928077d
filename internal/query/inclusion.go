package query

import (
	"fmt"
	"strings"
)

// Inclusion controls how a binary property filters a listing.
type Inclusion int

const (
	// Include applies no filtering.
	Include Inclusion = iota
	// Exclude keeps only rows lacking the property.
	Exclude
	// Exclusive keeps only rows having the property.
	Exclusive
)

func (i Inclusion) String() string {
	switch i {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	case Exclusive:
		return "exclusive"
	}
	return fmt.Sprintf("inclusion(%d)", int(i))
}

// ParseInclusion parses the case-insensitive name of an inclusion mode.
// The empty string parses as Include.
func ParseInclusion(s string) (Inclusion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "include":
		return Include, nil
	case "exclude":
		return Exclude, nil
	case "exclusive":
		return Exclusive, nil
	}
	return Include, fmt.Errorf("%w: unknown inclusion %q", ErrInvalidArgument, s)
}
