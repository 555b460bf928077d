package graph

import (
	"context"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"gorm.io/gorm"
)

const IterativeBackend = "iterative"

// IterativeTraverser resolves the active set for backends that cannot run a
// recursive query. Each hop is a set of bounded IN-list statements; the
// visited set guarantees termination and the iteration budget caps the depth.
// Versions further than the budget from the roots fail the traversal, as they
// do for the recursive backend.
type IterativeTraverser struct {
	opts options
}

var _ Traverser = (*IterativeTraverser)(nil)

func NewIterativeTraverser(opts ...Option) *IterativeTraverser {
	return &IterativeTraverser{opts: newOptions(opts)}
}

func (t *IterativeTraverser) Name() string {
	return IterativeBackend
}

func (t *IterativeTraverser) ActiveProducts(ctx context.Context, db *gorm.DB, scope Scope) (mapset.Set[string], error) {
	db = db.WithContext(ctx)

	roots, err := t.roots(db, scope)
	if err != nil {
		return nil, err
	}

	visited := mapset.NewThreadUnsafeSet(roots...)
	frontier := mapset.NewThreadUnsafeSet(roots...)

	derived, err := t.pluckBlocks(db, &model.Product{}, "derived_product_uuid", "uuid IN ? AND derived_product_uuid IS NOT NULL", roots)
	if err != nil {
		return nil, err
	}
	for _, uuid := range derived {
		if visited.Add(uuid) {
			frontier.Add(uuid)
		}
	}

	for hop := 1; frontier.Cardinality() > 0; hop++ {
		children, err := t.pluckBlocks(db, &model.ProductProvidedProduct{}, "provided_product_uuid", "product_uuid IN ?", sorted(frontier))
		if err != nil {
			return nil, err
		}

		next := mapset.NewThreadUnsafeSet[string]()
		for _, uuid := range children {
			if visited.Add(uuid) {
				next.Add(uuid)
			}
		}
		// versions first seen on this hop are hop edges away from the seeds
		if hop > t.opts.maxIterations && next.Cardinality() > 0 {
			return nil, fmt.Errorf("%w: %d hops, %d versions still unexplored", ErrTraversalBudgetExceeded, t.opts.maxIterations, next.Cardinality())
		}
		frontier = next
	}

	return visited, nil
}

func (t *IterativeTraverser) roots(db *gorm.DB, scope Scope) ([]string, error) {
	b := query.New(nil, query.WithBlockSize(t.opts.blockSize), query.WithParameterLimit(t.opts.parameterLimit))
	if len(scope.OwnerIDs) > 0 {
		b.In("owner_id", scope.OwnerIDs)
	}
	at := scope.At.UTC()
	b.Where("start_date <= ? AND end_date > ?", at, at)

	tx, err := b.Filters(db.Model(&model.Pool{}))
	if err != nil {
		return nil, err
	}

	var roots []string
	if err := tx.Distinct().Pluck("product_uuid", &roots).Error; err != nil {
		return nil, err
	}
	return roots, nil
}

// pluckBlocks runs one statement per block of keys and concatenates the
// plucked column.
func (t *IterativeTraverser) pluckBlocks(db *gorm.DB, m any, column, where string, keys []string) ([]string, error) {
	var out []string
	for _, block := range query.Partition(keys, t.opts.blockSize) {
		var values []string
		if err := db.Model(m).Where(where, block).Pluck(column, &values).Error; err != nil {
			return nil, err
		}
		out = append(out, values...)
	}
	return out, nil
}

func sorted(set mapset.Set[string]) []string {
	values := set.ToSlice()
	slices.Sort(values)
	return values
}
