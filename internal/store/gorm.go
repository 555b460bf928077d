package store

import (
	"context"
	"errors"
	"slices"

	"github.com/emrgen/catalog/internal/graph"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Option func(*GormStore)

// WithResolver sets the resolver used for active-set filtering.
func WithResolver(resolver *graph.Resolver) Option {
	return func(g *GormStore) {
		g.resolver = resolver
	}
}

// WithBlockSize sets the IN-list block size of bulk statements.
func WithBlockSize(n int) Option {
	return func(g *GormStore) {
		if n > 0 {
			g.blockSize = n
		}
	}
}

// WithParameterLimit sets the IN-list parameter ceiling of one statement.
func WithParameterLimit(n int) Option {
	return func(g *GormStore) {
		if n > 0 {
			g.paramLimit = n
		}
	}
}

func NewGormStore(db *gorm.DB, opts ...Option) *GormStore {
	g := &GormStore{
		db:         db,
		blockSize:  query.DefaultBlockSize,
		paramLimit: query.DefaultParameterLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.resolver == nil {
		g.resolver = graph.NewResolver(graph.NewRecursiveTraverser(
			graph.WithBlockSize(g.blockSize),
			graph.WithParameterLimit(g.paramLimit),
		), nil, g.blockSize)
	}
	return g
}

var _ Store = (*GormStore)(nil)

type GormStore struct {
	db         *gorm.DB
	resolver   *graph.Resolver
	blockSize  int
	paramLimit int
}

func (g *GormStore) Migrate() error {
	return model.Migrate(g.db)
}

// Transaction runs f against a store bound to one transaction. Store
// operations that open their own transaction run as savepoints inside it.
func (g *GormStore) Transaction(ctx context.Context, f func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(g.with(tx))
	})
}

func (g *GormStore) with(db *gorm.DB) *GormStore {
	return &GormStore{
		db:         db,
		resolver:   g.resolver,
		blockSize:  g.blockSize,
		paramLimit: g.paramLimit,
	}
}

func (g *GormStore) builder(fields []string) *query.Builder {
	return query.New(fields, query.WithBlockSize(g.blockSize), query.WithParameterLimit(g.paramLimit))
}

// lock adds a row lock of the given strength. SQLite has no row locks and
// serializes writers on the whole database instead.
func lock(tx *gorm.DB, strength string) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func duplicated(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// uniqueSorted returns the distinct values in order.
func uniqueSorted(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
