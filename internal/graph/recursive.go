package graph

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/query"
	"gorm.io/gorm"
)

const RecursiveBackend = "recursive"

// reachSQL computes the closure in one statement. Seeds are the roots and
// their derived products at depth 0; the derived hop joins roots, not the
// recursive table, so it is taken from roots only. UNION drops repeated
// (uuid, depth) rows and the depth cap stops a cyclic graph one hop past the
// budget, which is how an exhausted budget is detected.
const reachSQL = `
WITH RECURSIVE roots(uuid) AS (
	SELECT DISTINCT pools.product_uuid
	FROM pools
	WHERE %s AND pools.start_date <= ? AND pools.end_date > ?
),
seeds(uuid) AS (
	SELECT roots.uuid FROM roots
	UNION
	SELECT products.derived_product_uuid
	FROM products
	JOIN roots ON roots.uuid = products.uuid
	WHERE products.derived_product_uuid IS NOT NULL
),
reach(uuid, depth) AS (
	SELECT seeds.uuid, 0 FROM seeds
	UNION
	SELECT ppp.provided_product_uuid, reach.depth + 1
	FROM product_provided_products ppp
	JOIN reach ON reach.uuid = ppp.product_uuid
	WHERE reach.depth <= ?
)
`

const (
	depthSQL      = reachSQL + `SELECT reach.uuid, MIN(reach.depth) FROM reach GROUP BY reach.uuid`
	overBudgetSQL = reachSQL + `SELECT COUNT(*) FROM (SELECT reach.uuid FROM reach GROUP BY reach.uuid HAVING MIN(reach.depth) > ?) over_budget`
	membersSQL    = reachSQL + `SELECT reach.uuid FROM reach`
)

// RecursiveTraverser resolves the active set with a single recursive query.
type RecursiveTraverser struct {
	opts options
}

var (
	_ Traverser    = (*RecursiveTraverser)(nil)
	_ SQLTraverser = (*RecursiveTraverser)(nil)
)

func NewRecursiveTraverser(opts ...Option) *RecursiveTraverser {
	return &RecursiveTraverser{opts: newOptions(opts)}
}

func (r *RecursiveTraverser) Name() string {
	return RecursiveBackend
}

func (r *RecursiveTraverser) ActiveProducts(ctx context.Context, db *gorm.DB, scope Scope) (mapset.Set[string], error) {
	stmt, args, err := r.render(depthSQL, scope)
	if err != nil {
		return nil, err
	}

	rows, err := db.WithContext(ctx).Raw(stmt, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	active := mapset.NewThreadUnsafeSet[string]()
	over := 0
	for rows.Next() {
		var (
			uuid  string
			depth int
		)
		if err := rows.Scan(&uuid, &depth); err != nil {
			return nil, err
		}
		if depth > r.opts.maxIterations {
			over++
			continue
		}
		active.Add(uuid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if over > 0 {
		return nil, r.budgetError(over)
	}
	return active, nil
}

// ActiveProductsSQL checks the hop budget of scope and returns the traversal
// as a statement selecting the active product UUIDs.
func (r *RecursiveTraverser) ActiveProductsSQL(ctx context.Context, db *gorm.DB, scope Scope) (string, []any, error) {
	stmt, args, err := r.render(overBudgetSQL, scope)
	if err != nil {
		return "", nil, err
	}

	var over int64
	if err := db.WithContext(ctx).Raw(stmt, append(args, r.opts.maxIterations)...).Scan(&over).Error; err != nil {
		return "", nil, err
	}
	if over > 0 {
		return "", nil, r.budgetError(int(over))
	}

	return r.render(membersSQL, scope)
}

func (r *RecursiveTraverser) render(stmt string, scope Scope) (string, []any, error) {
	if err := query.CheckLimit(len(scope.OwnerIDs), r.opts.parameterLimit); err != nil {
		return "", nil, err
	}

	ownerSQL, args := "1 = 1", []any{}
	if len(scope.OwnerIDs) > 0 {
		ownerSQL, args = query.InSQL("pools.owner_id", scope.OwnerIDs, r.opts.blockSize)
	}
	at := scope.At.UTC()
	args = append(args, at, at, r.opts.maxIterations)

	return fmt.Sprintf(stmt, ownerSQL), args, nil
}

func (r *RecursiveTraverser) budgetError(unexplored int) error {
	return fmt.Errorf("%w: %d hops, %d versions still unexplored", ErrTraversalBudgetExceeded, r.opts.maxIterations, unexplored)
}
