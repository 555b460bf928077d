package store

import (
	"context"
	"testing"
	"time"

	"github.com/emrgen/catalog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStore_UpdateOwnerProductReferences(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	other := createOwner(t, s)
	old := createProduct(t, s, &model.Product{ID: "p", Name: "old"})
	next := createProduct(t, s, &model.Product{ID: "p", Name: "next"})

	mapProduct(t, s, owner, old)
	mapProduct(t, s, other, old)
	ownerPool := createPool(t, s, owner, old)
	otherPool := createPool(t, s, other, old)

	require.NoError(t, s.UpdateOwnerProductReferences(ctx, owner, map[string]string{old: next}))

	resolved, err := s.ResolveOwnerProductUUID(ctx, owner, "p")
	require.NoError(t, err)
	assert.Equal(t, next, resolved)

	// the other owner is untouched
	resolved, err = s.ResolveOwnerProductUUID(ctx, other, "p")
	require.NoError(t, err)
	assert.Equal(t, old, resolved)

	pools, err := s.ListPools(ctx, owner, now)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, ownerPool.ID, pools[0].ID)
	assert.Equal(t, next, pools[0].ProductUUID)

	pools, err = s.ListPools(ctx, other, now)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, otherPool.ID, pools[0].ID)
	assert.Equal(t, old, pools[0].ProductUUID)

	count, err := s.ProductOwnerCount(ctx, old)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGormStore_UpdateReferencesWhenNewAlreadyMapped(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	old := createProduct(t, s, &model.Product{ID: "old"})
	next := createProduct(t, s, &model.Product{ID: "next"})
	mapProduct(t, s, owner, old)
	mapProduct(t, s, owner, next)

	require.NoError(t, s.UpdateOwnerProductReferences(ctx, owner, map[string]string{old: next}))

	exists, err := s.OwnerProductExists(ctx, owner, old)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = s.OwnerProductExists(ctx, owner, next)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGormStore_UpdateReferencesIdConflict(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	old := createProduct(t, s, &model.Product{ID: "old"})
	q1 := createProduct(t, s, &model.Product{ID: "q"})
	q2 := createProduct(t, s, &model.Product{ID: "q"})
	mapProduct(t, s, owner, old)
	mapProduct(t, s, owner, q1)

	err := s.UpdateOwnerProductReferences(ctx, owner, map[string]string{old: q2})
	assert.ErrorIs(t, err, ErrMappingConflict)

	exists, err := s.OwnerProductExists(ctx, owner, old)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGormStore_UpdateReferencesValidation(t *testing.T) {
	s := newStore(t, WithParameterLimit(1))
	ctx := context.TODO()

	owner := createOwner(t, s)
	a := createProduct(t, s, &model.Product{ID: "a"})
	b := createProduct(t, s, &model.Product{ID: "b"})
	c := createProduct(t, s, &model.Product{ID: "c"})

	// no-op pairs are skipped before anything else is checked
	assert.NoError(t, s.UpdateOwnerProductReferences(ctx, "", map[string]string{a: a}))
	assert.NoError(t, s.UpdateOwnerProductReferences(ctx, owner, nil))

	assert.ErrorIs(t, s.UpdateOwnerProductReferences(ctx, owner, map[string]string{a: b, b: c}), ErrInvalidArgument)
	assert.ErrorIs(t, s.UpdateOwnerProductReferences(ctx, owner, map[string]string{a: ""}), ErrInvalidArgument)
	assert.ErrorIs(t, s.UpdateOwnerProductReferences(ctx, "", map[string]string{a: b}), ErrInvalidArgument)
	assert.ErrorIs(t, s.UpdateOwnerProductReferences(ctx, owner, map[string]string{a: "missing"}), ErrNotFound)
	assert.ErrorIs(t, s.UpdateOwnerProductReferences(ctx, owner, map[string]string{a: c, b: c}), ErrStateSizeLimitExceeded)
}

func TestGormStore_UpdateOwnerContentReferences(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	other := createOwner(t, s)
	old := createContent(t, s, &model.Content{ID: "c", Label: "old"})
	next := createContent(t, s, &model.Content{ID: "c", Label: "next"})
	mapContent(t, s, owner, old)
	mapContent(t, s, other, old)

	dev := &model.Environment{OwnerID: owner, Name: "dev"}
	prod := &model.Environment{OwnerID: owner, Name: "prod"}
	foreign := &model.Environment{OwnerID: other, Name: "dev"}
	for _, env := range []*model.Environment{dev, prod, foreign} {
		require.NoError(t, s.CreateEnvironment(ctx, env))
	}

	disabled := false
	require.NoError(t, s.AddEnvironmentContent(ctx, dev.ID, old, nil))
	require.NoError(t, s.AddEnvironmentContent(ctx, prod.ID, old, nil))
	require.NoError(t, s.AddEnvironmentContent(ctx, prod.ID, next, &disabled))
	require.NoError(t, s.AddEnvironmentContent(ctx, foreign.ID, old, nil))

	require.NoError(t, s.UpdateOwnerContentReferences(ctx, owner, map[string]string{old: next}))

	resolved, err := s.ResolveOwnerContentUUID(ctx, owner, "c")
	require.NoError(t, err)
	assert.Equal(t, next, resolved)

	rows, err := s.ListEnvironmentContent(ctx, dev.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, next, rows[0].ContentUUID)

	// prod already held the new version, so only that row remains
	rows, err = s.ListEnvironmentContent(ctx, prod.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, next, rows[0].ContentUUID)
	require.NotNil(t, rows[0].Enabled)
	assert.False(t, *rows[0].Enabled)

	rows, err = s.ListEnvironmentContent(ctx, foreign.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, old, rows[0].ContentUUID)
}

func TestGormStore_RemoveOwnerReferences(t *testing.T) {
	s := newStore(t, WithBlockSize(1))
	ctx := context.TODO()

	owner := createOwner(t, s)
	other := createOwner(t, s)
	p1 := createProduct(t, s, &model.Product{ID: "p1"})
	p2 := createProduct(t, s, &model.Product{ID: "p2"})
	c1 := createContent(t, s, &model.Content{ID: "c1"})
	for _, o := range []string{owner, other} {
		mapProduct(t, s, o, p1)
		mapProduct(t, s, o, p2)
		mapContent(t, s, o, c1)
	}

	env := &model.Environment{OwnerID: owner, Name: "dev"}
	otherEnv := &model.Environment{OwnerID: other, Name: "dev"}
	require.NoError(t, s.CreateEnvironment(ctx, env))
	require.NoError(t, s.CreateEnvironment(ctx, otherEnv))
	require.NoError(t, s.AddEnvironmentContent(ctx, env.ID, c1, nil))
	require.NoError(t, s.AddEnvironmentContent(ctx, otherEnv.ID, c1, nil))

	removed, err := s.RemoveOwnerProductReferences(ctx, owner, []string{p1, p2, p2, "missing"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	removed, err = s.RemoveOwnerContentReferences(ctx, owner, []string{c1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	rows, err := s.ListEnvironmentContent(ctx, env.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.ListEnvironmentContent(ctx, otherEnv.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	for _, uuid := range []string{p1, p2} {
		count, err := s.ProductOwnerCount(ctx, uuid)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	}

	removed, err = s.RemoveOwnerProductReferences(ctx, owner, nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestGormStore_RewriteOntoReclaimedVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	old := createProduct(t, s, &model.Product{ID: "p"})
	mapProduct(t, s, owner, old)
	replacement := createProduct(t, s, &model.Product{ID: "p"})
	pooled := createPool(t, s, owner, old)

	deleted, err := s.DeleteOrphanedProducts(ctx, []string{replacement})
	require.NoError(t, err)
	require.Equal(t, []string{replacement}, deleted)

	err = s.UpdateOwnerProductReferences(ctx, owner, map[string]string{old: replacement})
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.CreatePool(ctx, &model.Pool{OwnerID: owner, ProductUUID: replacement, StartDate: now, EndDate: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotFound)

	// the owner still references the version it had
	exists, err := s.OwnerProductExists(ctx, owner, old)
	require.NoError(t, err)
	assert.True(t, exists)
	pools, err := s.ListPools(ctx, owner, time.Time{})
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, pooled.ID, pools[0].ID)
	assert.Equal(t, old, pools[0].ProductUUID)
}
