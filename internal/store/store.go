package store

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/model"
)

type Store interface {
	VersionStore
	MappingStore
	ReferenceRewriter
	OrphanReclaimer
	CatalogReader
	OwnerStore
	Transaction(ctx context.Context, f func(tx Store) error) error
	Migrate() error
}

// VersionStore holds immutable product and content versions.
type VersionStore interface {
	// GetProduct retrieves a product version with its edges.
	GetProduct(ctx context.Context, uuid string) (*model.Product, error)
	// FindProductsByVersion retrieves the versions of a logical product with the given entity version.
	FindProductsByVersion(ctx context.Context, id string, version int64) ([]*model.Product, error)
	// CreateProduct stores a product version, converging onto an existing one when same accepts it.
	CreateProduct(ctx context.Context, product *model.Product, same model.ProductMatcher) (string, bool, error)
	// ClearProductEntityVersion stops a product version from being converged onto.
	ClearProductEntityVersion(ctx context.Context, uuid string) error

	// GetContent retrieves a content version.
	GetContent(ctx context.Context, uuid string) (*model.Content, error)
	// FindContentByVersion retrieves the versions of a logical content with the given entity version.
	FindContentByVersion(ctx context.Context, id string, version int64) ([]*model.Content, error)
	// CreateContent stores a content version, converging onto an existing one when same accepts it.
	CreateContent(ctx context.Context, content *model.Content, same model.ContentMatcher) (string, bool, error)
	// ClearContentEntityVersion stops a content version from being converged onto.
	ClearContentEntityVersion(ctx context.Context, uuid string) error
}

// MappingStore maps owners to the versions they currently see.
type MappingStore interface {
	// GetOwnerProduct retrieves the product version an owner maps for a logical ID.
	GetOwnerProduct(ctx context.Context, ownerID, id string) (*model.Product, error)
	// ResolveOwnerProductUUID returns the version UUID an owner maps for a logical ID.
	ResolveOwnerProductUUID(ctx context.Context, ownerID, id string) (string, error)
	// OwnerProductExists reports whether an owner maps a product version.
	OwnerProductExists(ctx context.Context, ownerID, uuid string) (bool, error)
	// MapProductToOwner maps a product version to an owner, reporting whether a row was created.
	MapProductToOwner(ctx context.Context, ownerID, uuid string) (bool, error)
	// UnmapProductFromOwner removes a mapping, reporting whether a row was removed.
	UnmapProductFromOwner(ctx context.Context, ownerID, uuid string) (bool, error)
	// ProductOwnerCount counts the owners mapping a product version.
	ProductOwnerCount(ctx context.Context, uuid string) (int64, error)
	// ListProductOwners lists the owners mapping a product version.
	ListProductOwners(ctx context.Context, uuid string) ([]string, error)
	// RebuildOwnerProducts replaces every product mapping of an owner.
	RebuildOwnerProducts(ctx context.Context, ownerID string, idToUUID map[string]string) error
	// ClearOwnerProducts removes every product mapping of an owner.
	ClearOwnerProducts(ctx context.Context, ownerID string) (int64, error)

	GetOwnerContent(ctx context.Context, ownerID, id string) (*model.Content, error)
	ResolveOwnerContentUUID(ctx context.Context, ownerID, id string) (string, error)
	OwnerContentExists(ctx context.Context, ownerID, uuid string) (bool, error)
	MapContentToOwner(ctx context.Context, ownerID, uuid string) (bool, error)
	UnmapContentFromOwner(ctx context.Context, ownerID, uuid string) (bool, error)
	ContentOwnerCount(ctx context.Context, uuid string) (int64, error)
	ListContentOwners(ctx context.Context, uuid string) ([]string, error)
	RebuildOwnerContent(ctx context.Context, ownerID string, idToUUID map[string]string) error
	ClearOwnerContent(ctx context.Context, ownerID string) (int64, error)
}

// ReferenceRewriter repoints an owner's references from old to new versions.
type ReferenceRewriter interface {
	// UpdateOwnerProductReferences repoints the owner's product mappings and pools.
	UpdateOwnerProductReferences(ctx context.Context, ownerID string, uuidMap map[string]string) error
	// UpdateOwnerContentReferences repoints the owner's content mappings and environment content.
	UpdateOwnerContentReferences(ctx context.Context, ownerID string, uuidMap map[string]string) error
	// RemoveOwnerProductReferences drops the owner's mappings of the given product versions.
	RemoveOwnerProductReferences(ctx context.Context, ownerID string, uuids []string) (int64, error)
	// RemoveOwnerContentReferences drops the owner's mappings and environment content of the given versions.
	RemoveOwnerContentReferences(ctx context.Context, ownerID string, uuids []string) (int64, error)
}

// OrphanReclaimer finds and deletes versions no owner maps.
type OrphanReclaimer interface {
	ListOrphanedProductUUIDs(ctx context.Context) ([]string, error)
	// DeleteOrphanedProducts deletes the candidates still unmapped at delete time.
	DeleteOrphanedProducts(ctx context.Context, uuids []string) ([]string, error)
	ListOrphanedContentUUIDs(ctx context.Context) ([]string, error)
	// DeleteOrphanedContent deletes the candidates still unmapped at delete time.
	DeleteOrphanedContent(ctx context.Context, uuids []string) ([]string, error)
}

// CatalogReader lists versions and resolves active sets.
type CatalogReader interface {
	// ListProducts lists product versions matching args, with the total count before paging.
	ListProducts(ctx context.Context, args QueryArguments) ([]*model.Product, int64, error)
	// ListContent lists content versions matching args, with the total count before paging.
	ListContent(ctx context.Context, args QueryArguments) ([]*model.Content, int64, error)
	// ActiveProductUUIDs returns the product versions reachable from the owners' valid pools.
	// The returned set is thread-unsafe.
	ActiveProductUUIDs(ctx context.Context, ownerIDs ...string) (mapset.Set[string], error)
	// ActiveContent returns the active content versions and their merged enabled flag.
	ActiveContent(ctx context.Context, ownerIDs ...string) (map[string]bool, error)
}

// OwnerStore holds owners and the pools and environments referencing versions.
type OwnerStore interface {
	CreateOwner(ctx context.Context, owner *model.Owner) error
	GetOwner(ctx context.Context, id string) (*model.Owner, error)
	// DeleteOwner removes an owner with its mappings, pools and environments.
	DeleteOwner(ctx context.Context, id string) error
	CreatePool(ctx context.Context, pool *model.Pool) error
	ListPools(ctx context.Context, ownerID string, at time.Time) ([]*model.Pool, error)
	CreateEnvironment(ctx context.Context, env *model.Environment) error
	AddEnvironmentContent(ctx context.Context, envID string, contentUUID string, enabled *bool) error
	ListEnvironmentContent(ctx context.Context, envID string) ([]*model.EnvironmentContent, error)
}
