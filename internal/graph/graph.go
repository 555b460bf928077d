// Package graph computes the set of product versions reachable from the
// currently valid pools of one or more owners.
//
// A pool roots its product. From a root the traversal follows the single
// derived product edge once, then follows provided product edges from the
// roots and the derived products until no new versions appear. Derived edges
// of non-root products are not followed.
package graph

import (
	"context"
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/query"
	"gorm.io/gorm"
)

var (
	// ErrTraversalBudgetExceeded is returned when a traversal needs more
	// hops than its configured budget.
	ErrTraversalBudgetExceeded = errors.New("traversal budget exceeded")
)

const (
	// DefaultMaxIterations bounds the provided product hops of one traversal.
	DefaultMaxIterations = 1000
)

// Scope selects the pools rooting a traversal. An empty OwnerIDs selects the
// pools of every owner.
type Scope struct {
	OwnerIDs []string
	At       time.Time
}

// Traverser computes the active product versions for a scope. Both
// implementations return identical sets and terminate on cyclic graphs.
type Traverser interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// ActiveProducts returns the UUIDs of the product versions reachable
	// from the pools in scope. The set is thread-unsafe; compare it with
	// another thread-unsafe set or through ToSlice.
	ActiveProducts(ctx context.Context, db *gorm.DB, scope Scope) (mapset.Set[string], error)
}

// SQLTraverser is a Traverser that can also render its traversal as a
// subquery, so callers filter on the active set without loading it.
type SQLTraverser interface {
	Traverser
	// ActiveProductsSQL checks the hop budget of scope and returns a
	// statement selecting the active product UUIDs, with its arguments.
	ActiveProductsSQL(ctx context.Context, db *gorm.DB, scope Scope) (string, []any, error)
}

type Option func(*options)

type options struct {
	blockSize      int
	parameterLimit int
	maxIterations  int
}

// WithBlockSize sets the IN-list block size used by the traversal.
func WithBlockSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.blockSize = n
		}
	}
}

// WithParameterLimit sets the ceiling for caller supplied owner lists.
func WithParameterLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.parameterLimit = n
		}
	}
}

// WithMaxIterations sets the hop budget: the largest number of provided
// product edges between a root (or its derived product) and an active version.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		blockSize:      query.DefaultBlockSize,
		parameterLimit: query.DefaultParameterLimit,
		maxIterations:  DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the traverser registered under name: "recursive" (the default)
// or "iterative".
func New(name string, opts ...Option) (Traverser, error) {
	switch name {
	case "", RecursiveBackend:
		return NewRecursiveTraverser(opts...), nil
	case IterativeBackend:
		return NewIterativeTraverser(opts...), nil
	}
	return nil, errors.New("unknown traversal backend: " + name)
}
