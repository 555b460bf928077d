package cache

import (
	"context"

	"github.com/emrgen/catalog/internal/model"
)

// Kind selects the product or the content side of the cache.
type Kind string

const (
	ProductKind Kind = "product"
	ContentKind Kind = "content"
)

// Lookup is the result of a mapping read. Generation counts the owner's
// evictions at the time of the read and guards the write that fills a miss.
type Lookup struct {
	UUID       string
	Hit        bool
	Generation int64
}

// CatalogCache caches owner resolutions and the immutable versions they
// resolve to. Version entries never go stale; mapping entries are evicted
// whenever an owner's mappings change.
type CatalogCache interface {
	// GetMapping returns the version UUID cached for the owner's logical ID.
	GetMapping(ctx context.Context, kind Kind, ownerID, id string) (Lookup, error)
	// SetMapping caches the version UUID of the owner's logical ID, unless
	// the owner was evicted after the lookup that returned generation.
	SetMapping(ctx context.Context, kind Kind, ownerID, id, uuid string, generation int64) error
	// EvictOwner drops every cached mapping of the owner and advances its
	// generation.
	EvictOwner(ctx context.Context, kind Kind, ownerID string) error

	GetProduct(ctx context.Context, uuid string) (*model.Product, bool, error)
	SetProduct(ctx context.Context, product *model.Product) error
	GetContent(ctx context.Context, uuid string) (*model.Content, bool, error)
	SetContent(ctx context.Context, content *model.Content) error
	// EvictVersions drops cached versions, used once they are reclaimed.
	EvictVersions(ctx context.Context, kind Kind, uuids ...string) error
}
