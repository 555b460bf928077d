package graph

import (
	"context"
	"os"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"github.com/emrgen/catalog/internal/tester"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	tester.Setup()
	code := m.Run()
	tester.RemoveDBFile()

	os.Exit(code)
}

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func backends(opts ...Option) []Traverser {
	return []Traverser{NewRecursiveTraverser(opts...), NewIterativeTraverser(opts...)}
}

type fixture struct {
	db    *gorm.DB
	owner string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tester.Setup()
	return &fixture{db: tester.TestDB(), owner: uuid.NewString()}
}

func (f *fixture) product(t *testing.T, name string, derived *string, provided ...string) string {
	t.Helper()
	p := &model.Product{UUID: uuid.NewString(), ID: name, Name: name, DerivedProductUUID: derived}
	require.NoError(t, f.db.Create(p).Error)
	for _, child := range provided {
		require.NoError(t, f.db.Create(&model.ProductProvidedProduct{ProductUUID: p.UUID, ProvidedProductUUID: child}).Error)
	}
	return p.UUID
}

func (f *fixture) provide(t *testing.T, parent, child string) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.ProductProvidedProduct{ProductUUID: parent, ProvidedProductUUID: child}).Error)
}

func (f *fixture) pool(t *testing.T, owner, product string, start, end time.Time) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.Pool{ID: uuid.NewString(), OwnerID: owner, ProductUUID: product, Quantity: 1, StartDate: start, EndDate: end}).Error)
}

// pool P roots A; A derives B and provides C; B provides D
func (f *fixture) scenario(t *testing.T) (a, b, c, d string) {
	d = f.product(t, "D", nil)
	c = f.product(t, "C", nil)
	b = f.product(t, "B", nil, d)
	a = f.product(t, "A", &b, c)
	return a, b, c, d
}

func TestTraverser_ActiveProducts(t *testing.T) {
	for _, traverser := range backends() {
		t.Run(traverser.Name(), func(t *testing.T) {
			f := newFixture(t)
			a, b, c, d := f.scenario(t)
			f.pool(t, f.owner, a, now.Add(-time.Hour), now.Add(time.Hour))

			active, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{OwnerIDs: []string{f.owner}, At: now})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{a, b, c, d}, active.ToSlice())
			assert.True(t, active.Equal(mapset.NewThreadUnsafeSet(d, c, b, a)))

			other, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{OwnerIDs: []string{uuid.NewString()}, At: now})
			require.NoError(t, err)
			assert.Equal(t, 0, other.Cardinality())
		})
	}
}

func TestTraverser_ExpiredPool(t *testing.T) {
	for _, traverser := range backends() {
		t.Run(traverser.Name(), func(t *testing.T) {
			f := newFixture(t)
			a, _, _, _ := f.scenario(t)
			f.pool(t, f.owner, a, now.Add(-2*time.Hour), now.Add(-time.Hour))
			f.pool(t, f.owner, a, now.Add(time.Hour), now.Add(2*time.Hour))
			// the end date is exclusive
			f.pool(t, f.owner, a, now.Add(-time.Hour), now)

			active, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{OwnerIDs: []string{f.owner}, At: now})
			require.NoError(t, err)
			assert.Equal(t, 0, active.Cardinality())
		})
	}
}

func TestTraverser_DerivedFollowedFromRootsOnly(t *testing.T) {
	for _, traverser := range backends() {
		t.Run(traverser.Name(), func(t *testing.T) {
			f := newFixture(t)
			leaf := f.product(t, "leaf", nil)
			derived := f.product(t, "derived", &leaf)
			root := f.product(t, "root", &derived)
			f.pool(t, f.owner, root, now.Add(-time.Hour), now.Add(time.Hour))

			active, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{OwnerIDs: []string{f.owner}, At: now})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{root, derived}, active.ToSlice())
		})
	}
}

func TestTraverser_Cycle(t *testing.T) {
	for _, traverser := range backends() {
		t.Run(traverser.Name(), func(t *testing.T) {
			f := newFixture(t)
			a := f.product(t, "A", nil)
			b := f.product(t, "B", nil, a)
			c := f.product(t, "C", nil, b)
			f.provide(t, a, c)
			f.provide(t, a, a)
			f.pool(t, f.owner, a, now.Add(-time.Hour), now.Add(time.Hour))

			active, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{OwnerIDs: []string{f.owner}, At: now})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{a, b, c}, active.ToSlice())
		})
	}
}

func TestTraverser_AllOwners(t *testing.T) {
	for _, traverser := range backends(WithBlockSize(1)) {
		t.Run(traverser.Name(), func(t *testing.T) {
			f := newFixture(t)
			a, b, c, d := f.scenario(t)
			other := uuid.NewString()
			lone := f.product(t, "lone", nil)
			f.pool(t, f.owner, a, now.Add(-time.Hour), now.Add(time.Hour))
			f.pool(t, other, lone, now.Add(-time.Hour), now.Add(time.Hour))

			active, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{At: now})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{a, b, c, d, lone}, active.ToSlice())

			both, err := traverser.ActiveProducts(context.TODO(), f.db, Scope{OwnerIDs: []string{f.owner, other}, At: now})
			require.NoError(t, err)
			assert.ElementsMatch(t, active.ToSlice(), both.ToSlice())
		})
	}
}

func TestTraverser_Budget(t *testing.T) {
	f := newFixture(t)
	// a root with a derived product and a provided chain three hops deep
	p3 := f.product(t, "p3", nil)
	p2 := f.product(t, "p2", nil, p3)
	p1 := f.product(t, "p1", nil, p2)
	derived := f.product(t, "derived", nil)
	root := f.product(t, "root", &derived, p1)
	f.provide(t, p3, root)
	f.pool(t, f.owner, root, now.Add(-time.Hour), now.Add(time.Hour))
	scope := Scope{OwnerIDs: []string{f.owner}, At: now}

	for _, traverser := range backends(WithMaxIterations(2)) {
		t.Run(traverser.Name()+" exceeded", func(t *testing.T) {
			_, err := traverser.ActiveProducts(context.TODO(), f.db, scope)
			assert.ErrorIs(t, err, ErrTraversalBudgetExceeded)
			assert.ErrorContains(t, err, "2 hops, 1 versions still unexplored")
		})
	}

	for _, traverser := range backends(WithMaxIterations(3)) {
		t.Run(traverser.Name()+" within", func(t *testing.T) {
			active, err := traverser.ActiveProducts(context.TODO(), f.db, scope)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{root, derived, p1, p2, p3}, active.ToSlice())
		})
	}

	_, _, err := NewRecursiveTraverser(WithMaxIterations(2)).ActiveProductsSQL(context.TODO(), f.db, scope)
	assert.ErrorIs(t, err, ErrTraversalBudgetExceeded)
}

func TestTraverser_OwnerLimit(t *testing.T) {
	owners := []string{"o1", "o2", "o3"}
	for _, traverser := range backends(WithParameterLimit(2)) {
		t.Run(traverser.Name(), func(t *testing.T) {
			_, err := traverser.ActiveProducts(context.TODO(), tester.TestDB(), Scope{OwnerIDs: owners, At: now})
			assert.ErrorIs(t, err, query.ErrStateSizeLimitExceeded)
		})
	}
}

func TestResolver_ActiveContentEnabledWins(t *testing.T) {
	f := newFixture(t)
	x := uuid.NewString()
	y := uuid.NewString()
	b := f.product(t, "B", nil)
	a := f.product(t, "A", nil, b)
	require.NoError(t, f.db.Create(&model.Content{UUID: x, ID: "X"}).Error)
	require.NoError(t, f.db.Create(&model.Content{UUID: y, ID: "Y"}).Error)
	require.NoError(t, f.db.Create(&[]model.ProductContent{
		{ProductUUID: a, ContentUUID: x, Enabled: false},
		{ProductUUID: b, ContentUUID: x, Enabled: true},
		{ProductUUID: a, ContentUUID: y, Enabled: false},
	}).Error)
	f.pool(t, f.owner, a, now.Add(-time.Hour), now.Add(time.Hour))

	for _, traverser := range backends() {
		t.Run(traverser.Name(), func(t *testing.T) {
			r := NewResolver(traverser, nil, 1).WithClock(func() time.Time { return now })
			assert.Equal(t, traverser.Name(), r.Backend())

			content, err := r.ActiveContent(context.TODO(), f.db, r.Scope(f.owner))
			require.NoError(t, err)
			assert.Equal(t, map[string]bool{x: true, y: false}, content)
		})
	}
}

func TestResolver_Membership(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := f.scenario(t)
	idle := f.product(t, "idle", nil)
	x := uuid.NewString()
	require.NoError(t, f.db.Create(&model.Content{UUID: x, ID: "X"}).Error)
	require.NoError(t, f.db.Create(&model.ProductContent{ProductUUID: d, ContentUUID: x}).Error)
	f.pool(t, f.owner, a, now.Add(-time.Hour), now.Add(time.Hour))

	for _, traverser := range backends() {
		t.Run(traverser.Name(), func(t *testing.T) {
			r := NewResolver(traverser, nil, 2).WithClock(func() time.Time { return now })

			err := f.db.Transaction(func(tx *gorm.DB) error {
				products, err := r.ProductMembership(context.TODO(), tx, r.Scope(f.owner))
				require.NoError(t, err)

				var active []string
				require.NoError(t, tx.Model(&model.Product{}).Where("uuid IN ("+products.SQL+")", products.Vars...).Pluck("uuid", &active).Error)
				assert.ElementsMatch(t, []string{a, b, c, d}, active)

				var inactive []string
				require.NoError(t, tx.Model(&model.Product{}).Where("uuid NOT IN ("+products.SQL+")", products.Vars...).Pluck("uuid", &inactive).Error)
				assert.Equal(t, []string{idle}, inactive)

				content, err := r.ContentMembership(context.TODO(), tx, r.Scope(f.owner))
				require.NoError(t, err)

				var contents []string
				require.NoError(t, tx.Model(&model.Content{}).Where("uuid IN ("+content.SQL+")", content.Vars...).Pluck("uuid", &contents).Error)
				assert.Equal(t, []string{x}, contents)

				require.NoError(t, products.Release(tx))
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestFilter(t *testing.T) {
	m := &Membership{SQL: "SELECT uuid FROM staged", Vars: []any{"a", "b"}}

	include := Filter(query.New(nil, query.WithParameterLimit(1)), "uuid", query.Include, m)
	exclusive := Filter(query.New(nil, query.WithParameterLimit(1)), "uuid", query.Exclusive, m)
	exclude := Filter(query.New(nil), "uuid", query.Exclude, m)

	assert.NoError(t, include.Err())
	assert.ErrorIs(t, exclusive.Err(), query.ErrStateSizeLimitExceeded)
	assert.NoError(t, exclude.Err())
}

func TestNew(t *testing.T) {
	for name, want := range map[string]string{"": RecursiveBackend, RecursiveBackend: RecursiveBackend, IterativeBackend: IterativeBackend} {
		traverser, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, want, traverser.Name())
	}

	_, err := New("breadth-first")
	assert.Error(t, err)
}
