package store

import (
	"context"
	"testing"

	"github.com/emrgen/catalog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestGormStore_CreateProduct(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	child := createProduct(t, s, &model.Product{ID: "child", Name: "child"})
	content := createContent(t, s, &model.Content{ID: "repo", Label: "repo"})

	uuid, created, err := s.CreateProduct(ctx, &model.Product{
		ID:                   "parent",
		Name:                 "parent",
		EntityVersion:        version(7),
		Attributes:           datatypes.JSONMap{"arch": "x86_64"},
		ProvidedProductUUIDs: []string{child, child},
		Contents:             []model.ProductContent{{ContentUUID: content, Enabled: true}},
	}, model.SameProduct)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := s.GetProduct(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, "parent", got.ID)
	assert.Equal(t, []string{child}, got.ProvidedProductUUIDs)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, content, got.Contents[0].ContentUUID)
	assert.True(t, got.Contents[0].Enabled)
	assert.Equal(t, "x86_64", got.Attributes["arch"])

	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.CreateProduct(ctx, &model.Product{ID: " "}, model.SameProduct)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGormStore_ProductConvergence(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	snapshot := func(name string) *model.Product {
		return &model.Product{ID: "p", Name: name, EntityVersion: version(1)}
	}

	first, created, err := s.CreateProduct(ctx, snapshot("one"), model.SameProduct)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.CreateProduct(ctx, snapshot("one"), model.SameProduct)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)

	_, _, err = s.CreateProduct(ctx, snapshot("two"), model.SameProduct)
	assert.ErrorIs(t, err, ErrConvergenceConflict)

	versions, err := s.FindProductsByVersion(ctx, "p", 1)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, first, versions[0].UUID)

	// a cleared version is never converged onto again
	require.NoError(t, s.ClearProductEntityVersion(ctx, first))
	second, created, err := s.CreateProduct(ctx, snapshot("one"), model.SameProduct)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, second)

	cleared, err := s.GetProduct(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, cleared.EntityVersion)

	assert.ErrorIs(t, s.ClearProductEntityVersion(ctx, "missing"), ErrNotFound)
}

func TestGormStore_UnversionedProductsNeverConverge(t *testing.T) {
	s := newStore(t)

	a := createProduct(t, s, &model.Product{ID: "p", Name: "same"})
	b := createProduct(t, s, &model.Product{ID: "p", Name: "same"})
	assert.NotEqual(t, a, b)
}

func TestGormStore_ContentConvergence(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	first, created, err := s.CreateContent(ctx, &model.Content{ID: "c", Label: "repo", EntityVersion: version(3)}, model.SameContent)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.CreateContent(ctx, &model.Content{ID: "c", Label: "repo", EntityVersion: version(3)}, model.SameContent)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, again)

	_, _, err = s.CreateContent(ctx, &model.Content{ID: "c", Label: "other", EntityVersion: version(3)}, model.SameContent)
	assert.ErrorIs(t, err, ErrConvergenceConflict)

	// a permissive matcher accepts the differing snapshot
	loose, created, err := s.CreateContent(ctx, &model.Content{ID: "c", Label: "other", EntityVersion: version(3)},
		func(existing, candidate *model.Content) bool { return existing.ID == candidate.ID })
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, loose)

	require.NoError(t, s.ClearContentEntityVersion(ctx, first))
	found, err := s.FindContentByVersion(ctx, "c", 3)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestGormStore_CreateProductMissingEdgeTarget(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	child := createProduct(t, s, &model.Product{ID: "child"})
	missing := "missing"

	for name, p := range map[string]*model.Product{
		"provided": {ID: "parent", ProvidedProductUUIDs: []string{child, missing}},
		"derived":  {ID: "parent", DerivedProductUUID: &missing},
		"content":  {ID: "parent", Contents: []model.ProductContent{{ContentUUID: missing}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := s.CreateProduct(ctx, p, model.SameProduct)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorContains(t, err, missing)

			var count int64
			require.NoError(t, rawDB(s).Model(&model.Product{}).Where("id = ?", "parent").Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}
