package graph

import (
	"context"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/metrics"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resolver turns traversal results into active product and content sets and
// listing filters.
type Resolver struct {
	traverser Traverser
	metrics   *metrics.Metrics
	blockSize int
	clock     func() time.Time
}

// NewResolver creates a resolver over the given traversal backend.
func NewResolver(traverser Traverser, m *metrics.Metrics, blockSize int) *Resolver {
	if blockSize <= 0 {
		blockSize = query.DefaultBlockSize
	}
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	return &Resolver{
		traverser: traverser,
		metrics:   m,
		blockSize: blockSize,
		clock:     time.Now,
	}
}

// WithClock replaces the time source used by Scope.
func (r *Resolver) WithClock(clock func() time.Time) *Resolver {
	r.clock = clock
	return r
}

// Backend returns the name of the traversal backend.
func (r *Resolver) Backend() string {
	return r.traverser.Name()
}

// Scope returns a scope over the given owners at the current time.
func (r *Resolver) Scope(ownerIDs ...string) Scope {
	return Scope{OwnerIDs: ownerIDs, At: r.clock()}
}

// ActiveProducts returns the product versions reachable from the pools in scope.
func (r *Resolver) ActiveProducts(ctx context.Context, db *gorm.DB, scope Scope) (mapset.Set[string], error) {
	start := time.Now()
	active, err := r.traverser.ActiveProducts(ctx, db, scope)
	if err != nil {
		return nil, err
	}

	r.metrics.TraversalDuration.WithLabelValues(r.traverser.Name()).Observe(time.Since(start).Seconds())
	r.metrics.ActiveProducts.Observe(float64(active.Cardinality()))

	logrus.WithFields(logrus.Fields{
		"backend": r.traverser.Name(),
		"owners":  len(scope.OwnerIDs),
		"active":  active.Cardinality(),
	}).Debug("resolved active products")

	return active, nil
}

// ActiveContent returns the content versions of the active products, mapped
// to their enabled flag. A content reached through several products is
// enabled if any of them enables it.
func (r *Resolver) ActiveContent(ctx context.Context, db *gorm.DB, scope Scope) (map[string]bool, error) {
	products, err := r.ActiveProducts(ctx, db, scope)
	if err != nil {
		return nil, err
	}

	return r.ContentOf(ctx, db, products)
}

// ContentOf returns the content associated with the given products, merged
// with the enabled-wins rule.
func (r *Resolver) ContentOf(ctx context.Context, db *gorm.DB, products mapset.Set[string]) (map[string]bool, error) {
	content := make(map[string]bool)
	for _, block := range query.Partition(sorted(products), r.blockSize) {
		var rows []model.ProductContent
		if err := db.WithContext(ctx).Where("product_uuid IN ?", block).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			content[row.ContentUUID] = content[row.ContentUUID] || row.Enabled
		}
	}
	return content, nil
}

// Membership is a statement selecting active version UUIDs, used as the
// right-hand side of an IN predicate. Its arguments are bound with it.
type Membership struct {
	SQL    string
	Vars   []any
	staged string
}

// Release drops the table staging the membership, if any. It must run on the
// transaction the membership was resolved on.
func (m *Membership) Release(db *gorm.DB) error {
	if m.staged == "" {
		return nil
	}
	return db.Exec("DROP TABLE " + m.staged).Error
}

type stagedVersion struct {
	UUID string `gorm:"column:uuid;primaryKey"`
}

// ProductMembership selects the active products of scope. A traverser that
// renders SQL is embedded as a subquery. Otherwise the traversal runs now and
// its result is staged in a temporary table, so db must be a transaction and
// the membership released on it.
func (r *Resolver) ProductMembership(ctx context.Context, db *gorm.DB, scope Scope) (*Membership, error) {
	if t, ok := r.traverser.(SQLTraverser); ok {
		stmt, vars, err := t.ActiveProductsSQL(ctx, db, scope)
		if err != nil {
			return nil, err
		}
		return &Membership{SQL: stmt, Vars: vars}, nil
	}

	active, err := r.ActiveProducts(ctx, db, scope)
	if err != nil {
		return nil, err
	}

	table := "active_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	tx := db.WithContext(ctx)
	if err := tx.Exec("CREATE TEMPORARY TABLE " + table + " (uuid VARCHAR(64) PRIMARY KEY)").Error; err != nil {
		return nil, err
	}

	rows := make([]stagedVersion, 0, active.Cardinality())
	for _, id := range sorted(active) {
		rows = append(rows, stagedVersion{UUID: id})
	}
	if err := tx.Table(table).CreateInBatches(rows, r.blockSize).Error; err != nil {
		return nil, err
	}

	return &Membership{SQL: "SELECT " + table + ".uuid FROM " + table, staged: table}, nil
}

// ContentMembership selects the content of the active products of scope.
func (r *Resolver) ContentMembership(ctx context.Context, db *gorm.DB, scope Scope) (*Membership, error) {
	products, err := r.ProductMembership(ctx, db, scope)
	if err != nil {
		return nil, err
	}
	return &Membership{
		SQL:    "SELECT product_contents.content_uuid FROM product_contents WHERE product_contents.product_uuid IN (" + products.SQL + ")",
		Vars:   products.Vars,
		staged: products.staged,
	}, nil
}

// Filter restricts column of b according to mode and the membership.
func Filter(b *query.Builder, column string, mode query.Inclusion, m *Membership) *query.Builder {
	switch mode {
	case query.Exclusive:
		return b.Expr(clause.Expr{SQL: column + " IN (" + m.SQL + ")", Vars: m.Vars})
	case query.Exclude:
		return b.Expr(clause.Expr{SQL: column + " NOT IN (" + m.SQL + ")", Vars: m.Vars})
	}
	return b
}
