package store

import (
	"context"
	"testing"

	"github.com/emrgen/catalog/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStore_ListOrphanedProductUUIDs(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	mapped := createProduct(t, s, &model.Product{ID: "mapped"})
	orphan := createProduct(t, s, &model.Product{ID: "orphan"})
	mapProduct(t, s, owner, mapped)

	orphans, err := s.ListOrphanedProductUUIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, orphans)

	_, err = s.UnmapProductFromOwner(ctx, owner, mapped)
	require.NoError(t, err)

	orphans, err = s.ListOrphanedProductUUIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{mapped, orphan}, orphans)
}

func TestGormStore_DeleteOrphanedProducts(t *testing.T) {
	s := newStore(t, WithBlockSize(2))
	ctx := context.TODO()

	owner := createOwner(t, s)
	content := createContent(t, s, &model.Content{ID: "c"})
	leaf := createProduct(t, s, &model.Product{ID: "leaf"})
	derived := createProduct(t, s, &model.Product{ID: "derived"})
	pooled := createProduct(t, s, &model.Product{ID: "pooled"})
	self := createProduct(t, s, &model.Product{ID: "self"})
	parent := createProduct(t, s, &model.Product{
		ID:                   "parent",
		DerivedProductUUID:   &derived,
		ProvidedProductUUIDs: []string{leaf},
		Contents:             []model.ProductContent{{ContentUUID: content, Enabled: true}},
	})
	require.NoError(t, rawDB(s).Create(&model.ProductProvidedProduct{ProductUUID: self, ProvidedProductUUID: self}).Error)
	mapProduct(t, s, owner, parent)
	createPool(t, s, owner, pooled)

	candidates, err := s.ListOrphanedProductUUIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{leaf, derived, pooled, self}, candidates)

	deleted, err := s.DeleteOrphanedProducts(ctx, candidates)
	require.NoError(t, err)
	// a self edge does not keep a version alive
	assert.Equal(t, []string{self}, deleted)

	_, err = s.GetProduct(ctx, self)
	assert.ErrorIs(t, err, ErrNotFound)

	var edges int64
	require.NoError(t, rawDB(s).Model(&model.ProductProvidedProduct{}).Where("product_uuid = ?", self).Count(&edges).Error)
	assert.Zero(t, edges)
}

func TestGormStore_DeleteOrphansRechecksMappings(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	a := createProduct(t, s, &model.Product{ID: "a"})
	b := createProduct(t, s, &model.Product{ID: "b"})

	candidates, err := s.ListOrphanedProductUUIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{a, b}, candidates)

	// a is mapped between listing and deletion
	mapProduct(t, s, owner, a)

	hook := test.NewGlobal()
	defer hook.Reset()

	deleted, err := s.DeleteOrphanedProducts(ctx, candidates)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, deleted)

	var warned []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = append(warned, entry)
		}
	}
	require.Len(t, warned, 1)
	assert.Equal(t, []string{a}, warned[0].Data["versions"])

	got, err := s.GetProduct(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, a, got.UUID)

	deleted, err = s.DeleteOrphanedProducts(ctx, []string{b, "missing"})
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestGormStore_DeleteOrphanedContent(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	used := createContent(t, s, &model.Content{ID: "used"})
	mapped := createContent(t, s, &model.Content{ID: "mapped"})
	promoted := createContent(t, s, &model.Content{ID: "promoted"})
	createProduct(t, s, &model.Product{ID: "p", Contents: []model.ProductContent{{ContentUUID: used}}})
	mapContent(t, s, owner, mapped)

	env := &model.Environment{OwnerID: owner, Name: "dev"}
	require.NoError(t, s.CreateEnvironment(ctx, env))
	require.NoError(t, s.AddEnvironmentContent(ctx, env.ID, promoted, nil))

	candidates, err := s.ListOrphanedContentUUIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{used, promoted}, candidates)

	deleted, err := s.DeleteOrphanedContent(ctx, candidates)
	require.NoError(t, err)
	assert.Equal(t, []string{promoted}, deleted)

	rows, err := s.ListEnvironmentContent(ctx, env.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGormStore_DeleteOwnerOrphansVersions(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	owner := createOwner(t, s)
	p := createProduct(t, s, &model.Product{ID: "p"})
	c := createContent(t, s, &model.Content{ID: "c"})
	mapProduct(t, s, owner, p)
	mapContent(t, s, owner, c)
	createPool(t, s, owner, p)
	env := &model.Environment{OwnerID: owner, Name: "dev"}
	require.NoError(t, s.CreateEnvironment(ctx, env))
	require.NoError(t, s.AddEnvironmentContent(ctx, env.ID, c, nil))

	require.NoError(t, s.DeleteOwner(ctx, owner))
	assert.ErrorIs(t, s.DeleteOwner(ctx, owner), ErrNotFound)

	_, err := s.GetOwner(ctx, owner)
	assert.ErrorIs(t, err, ErrNotFound)

	products, err := s.DeleteOrphanedProducts(ctx, []string{p})
	require.NoError(t, err)
	assert.Equal(t, []string{p}, products)

	content, err := s.DeleteOrphanedContent(ctx, []string{c})
	require.NoError(t, err)
	assert.Equal(t, []string{c}, content)
}
