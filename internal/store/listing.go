package store

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/graph"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	productFields = []string{"uuid", "id", "entity_version", "name", "namespace", "multiplier", "locked", "created_at", "updated_at"}
	contentFields = []string{"uuid", "id", "entity_version", "type", "label", "name", "vendor", "namespace", "locked", "created_at", "updated_at"}
)

// QueryArguments filters, orders and pages a version listing. Zero values
// disable the corresponding filter.
type QueryArguments struct {
	// OwnerIDs restricts the listing to versions mapped by these owners and
	// scopes the active set to their pools. Empty means every owner.
	OwnerIDs []string
	IDs      []string
	UUIDs    []string
	// Active filters on membership of the active set.
	Active query.Inclusion
	// Custom filters on having a non-empty namespace.
	Custom   query.Inclusion
	Orders   []query.Order
	Page     int
	PageSize int
}

func (a QueryArguments) paged() bool {
	return a.Page != 0 || a.PageSize != 0
}

func (g *GormStore) ListProducts(ctx context.Context, args QueryArguments) ([]*model.Product, int64, error) {
	var (
		products []*model.Product
		total    int64
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, membership, err := g.listing(ctx, tx, productKind, productFields, args, g.resolver.ProductMembership)
		if err != nil {
			return err
		}

		db, err := b.Filters(tx.Model(&model.Product{}))
		if err != nil {
			return err
		}
		if err := db.Count(&total).Error; err != nil {
			return err
		}

		db, err = b.Apply(tx.Model(&model.Product{}))
		if err != nil {
			return err
		}
		if err := db.Find(&products).Error; err != nil {
			return err
		}

		if err := g.loadProductEdges(ctx, tx, products); err != nil {
			return err
		}
		return release(tx, membership)
	})
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (g *GormStore) ListContent(ctx context.Context, args QueryArguments) ([]*model.Content, int64, error) {
	var (
		contents []*model.Content
		total    int64
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, membership, err := g.listing(ctx, tx, contentKind, contentFields, args, g.resolver.ContentMembership)
		if err != nil {
			return err
		}

		db, err := b.Filters(tx.Model(&model.Content{}))
		if err != nil {
			return err
		}
		if err := db.Count(&total).Error; err != nil {
			return err
		}

		db, err = b.Apply(tx.Model(&model.Content{}))
		if err != nil {
			return err
		}
		if err := db.Find(&contents).Error; err != nil {
			return err
		}
		return release(tx, membership)
	})
	if err != nil {
		return nil, 0, err
	}
	return contents, total, nil
}

type membershipFunc func(ctx context.Context, db *gorm.DB, scope graph.Scope) (*graph.Membership, error)

// listing assembles the listing statement. Ordering and paging are validated
// first so a bad request fails before the active set is traversed; the
// membership is only resolved when the active filter is not Include. The
// active set is joined as a subquery and never bound as parameters.
func (g *GormStore) listing(ctx context.Context, tx *gorm.DB, k kind, fields []string, args QueryArguments, members membershipFunc) (*query.Builder, *graph.Membership, error) {
	b := g.builder(fields)

	orders := args.Orders
	if len(orders) == 0 {
		orders = []query.Order{{Column: "uuid"}}
	}
	b.OrderBy(orders...)
	if args.paged() {
		b.Page(args.Page, args.PageSize)
	}

	if owners := uniqueSorted(args.OwnerIDs); len(owners) > 0 {
		sql, vars := query.InSQL("owner_id", owners, b.BlockSize())
		b.Expr(clause.Expr{
			SQL:  k.versions + ".uuid IN (SELECT " + k.uuidColumn + " FROM " + k.mappings + " WHERE " + sql + ")",
			Vars: vars,
		})
	}
	if len(args.IDs) > 0 {
		b.In(k.versions+".id", uniqueSorted(args.IDs))
	}
	if len(args.UUIDs) > 0 {
		b.In(k.versions+".uuid", uniqueSorted(args.UUIDs))
	}

	switch args.Custom {
	case query.Exclusive:
		b.Where(k.versions + ".namespace <> ''")
	case query.Exclude:
		b.Where(k.versions + ".namespace = ''")
	}

	if err := b.Err(); err != nil {
		return nil, nil, err
	}

	if args.Active == query.Include {
		return b, nil, nil
	}

	membership, err := members(ctx, tx, g.resolver.Scope(args.OwnerIDs...))
	if err != nil {
		return nil, nil, err
	}
	graph.Filter(b, k.versions+".uuid", args.Active, membership)
	return b, membership, b.Err()
}

func release(tx *gorm.DB, membership *graph.Membership) error {
	if membership == nil {
		return nil
	}
	return membership.Release(tx)
}

// ActiveProductUUIDs returns the product versions reachable from the valid
// pools of the owners, or of every owner when none are given.
func (g *GormStore) ActiveProductUUIDs(ctx context.Context, ownerIDs ...string) (mapset.Set[string], error) {
	return g.resolver.ActiveProducts(ctx, g.db, g.resolver.Scope(ownerIDs...))
}

func (g *GormStore) ActiveContent(ctx context.Context, ownerIDs ...string) (map[string]bool, error) {
	return g.resolver.ActiveContent(ctx, g.db, g.resolver.Scope(ownerIDs...))
}
