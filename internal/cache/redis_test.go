package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/emrgen/catalog/internal/compress"
	"github.com/emrgen/catalog/internal/config"
	"github.com/emrgen/catalog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, codec compress.Compress) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, codec, time.Hour), mr
}

func TestRedisCache_Mapping(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, compress.NewNop())

	miss, err := c.GetMapping(ctx, ProductKind, "acme", "69")
	require.NoError(t, err)
	assert.False(t, miss.Hit)
	assert.Zero(t, miss.Generation)

	require.NoError(t, c.SetMapping(ctx, ProductKind, "acme", "69", "uuid-1", miss.Generation))
	hit, err := c.GetMapping(ctx, ProductKind, "acme", "69")
	require.NoError(t, err)
	assert.True(t, hit.Hit)
	assert.Equal(t, "uuid-1", hit.UUID)
	assert.True(t, mr.TTL(ownerKey(ProductKind, "acme")) > 0)

	// content mappings of the same owner are independent
	other, err := c.GetMapping(ctx, ContentKind, "acme", "69")
	require.NoError(t, err)
	assert.False(t, other.Hit)

	require.NoError(t, c.EvictOwner(ctx, ProductKind, "acme"))
	evicted, err := c.GetMapping(ctx, ProductKind, "acme", "69")
	require.NoError(t, err)
	assert.False(t, evicted.Hit)
	assert.EqualValues(t, 1, evicted.Generation)
}

func TestRedisCache_MappingWriteAfterEviction(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, compress.NewNop())

	// the lookup misses, then the owner is evicted before the miss is filled
	lookup, err := c.GetMapping(ctx, ProductKind, "acme", "69")
	require.NoError(t, err)
	require.NoError(t, c.EvictOwner(ctx, ProductKind, "acme"))

	require.NoError(t, c.SetMapping(ctx, ProductKind, "acme", "69", "displaced", lookup.Generation))
	after, err := c.GetMapping(ctx, ProductKind, "acme", "69")
	require.NoError(t, err)
	assert.False(t, after.Hit)

	require.NoError(t, c.SetMapping(ctx, ProductKind, "acme", "69", "current", after.Generation))
	current, err := c.GetMapping(ctx, ProductKind, "acme", "69")
	require.NoError(t, err)
	assert.True(t, current.Hit)
	assert.Equal(t, "current", current.UUID)
}

func TestRedisCache_Versions(t *testing.T) {
	ctx := context.Background()

	for _, codec := range []compress.Compress{compress.NewNop(), compress.NewGZip(), compress.NewBrotli(), compress.NewLZ4()} {
		t.Run(codec.Name(), func(t *testing.T) {
			c, _ := newTestCache(t, codec)

			version := int64(3)
			product := &model.Product{
				UUID:                 "p-1",
				ID:                   "69",
				EntityVersion:        &version,
				Name:                 "Server",
				ProvidedProductUUIDs: []string{"p-2"},
				Contents:             []model.ProductContent{{ContentUUID: "c-1", Enabled: true}},
			}
			require.NoError(t, c.SetProduct(ctx, product))

			got, ok, err := c.GetProduct(ctx, "p-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Server", got.Name)
			assert.Equal(t, int64(3), *got.EntityVersion)
			assert.Equal(t, []string{"p-2"}, got.ProvidedProductUUIDs)
			assert.Equal(t, "c-1", got.Contents[0].ContentUUID)

			require.NoError(t, c.SetContent(ctx, &model.Content{UUID: "c-1", ID: "1001", Label: "base"}))
			content, ok, err := c.GetContent(ctx, "c-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "base", content.Label)

			require.NoError(t, c.EvictVersions(ctx, ProductKind, "p-1"))
			_, ok, err = c.GetProduct(ctx, "p-1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRedisCache_DropsForeignEntries(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t, compress.NewGZip())

	require.NoError(t, mr.Set(versionKey(ContentKind, "c-1"), "not gzip"))

	_, ok, err := c.GetContent(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(versionKey(ContentKind, "c-1")))
}
