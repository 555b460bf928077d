package service

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/cache"
	"github.com/emrgen/catalog/internal/metrics"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/store"
	"github.com/sirupsen/logrus"
)

// NewCatalogService creates a new CatalogService. A nil cache disables
// caching and nil metrics are not exported.
func NewCatalogService(store store.Store, c cache.CatalogCache, m *metrics.Metrics) *CatalogService {
	if c == nil {
		c = cache.Nop{}
	}
	if m == nil {
		m = metrics.NewNopMetrics()
	}
	return &CatalogService{store: store, cache: c, metrics: m}
}

// CatalogService is the entry point of import and refresh collaborators. It
// keeps the resolution cache consistent with the owner mappings it changes.
type CatalogService struct {
	store   store.Store
	cache   cache.CatalogCache
	metrics *metrics.Metrics
}

// ImportResult describes the outcome of an import for one owner.
type ImportResult struct {
	// UUID is the version the owner maps after the import.
	UUID string
	// Created is false when the import converged onto an existing version.
	Created bool
	// Displaced is the version the owner mapped before, if it changed. It is
	// a candidate for orphan reclaim.
	Displaced string
}

// ReclaimResult lists the versions deleted by ReclaimOrphans.
type ReclaimResult struct {
	Products []string
	Content  []string
	Spared   int
}

// ResolveProduct returns the product version the owner currently sees for
// the logical ID.
func (s *CatalogService) ResolveProduct(ctx context.Context, ownerID, id string) (*model.Product, error) {
	uuid, err := s.resolveUUID(ctx, cache.ProductKind, ownerID, id, s.store.ResolveOwnerProductUUID)
	if err != nil {
		return nil, err
	}

	if product, ok, err := s.cache.GetProduct(ctx, uuid); err != nil {
		logrus.Warnf("product cache read failed: %v", err)
	} else if ok {
		s.metrics.CacheHits.WithLabelValues(string(cache.ProductKind)).Inc()
		return product, nil
	}
	s.metrics.CacheMisses.WithLabelValues(string(cache.ProductKind)).Inc()

	product, err := s.store.GetProduct(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetProduct(ctx, product); err != nil {
		logrus.Warnf("product cache write failed: %v", err)
	}
	return product, nil
}

// ResolveContent returns the content version the owner currently sees for
// the logical ID.
func (s *CatalogService) ResolveContent(ctx context.Context, ownerID, id string) (*model.Content, error) {
	uuid, err := s.resolveUUID(ctx, cache.ContentKind, ownerID, id, s.store.ResolveOwnerContentUUID)
	if err != nil {
		return nil, err
	}

	if content, ok, err := s.cache.GetContent(ctx, uuid); err != nil {
		logrus.Warnf("content cache read failed: %v", err)
	} else if ok {
		s.metrics.CacheHits.WithLabelValues(string(cache.ContentKind)).Inc()
		return content, nil
	}
	s.metrics.CacheMisses.WithLabelValues(string(cache.ContentKind)).Inc()

	content, err := s.store.GetContent(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetContent(ctx, content); err != nil {
		logrus.Warnf("content cache write failed: %v", err)
	}
	return content, nil
}

func (s *CatalogService) resolveUUID(ctx context.Context, kind cache.Kind, ownerID, id string, resolve func(context.Context, string, string) (string, error)) (string, error) {
	if ownerID == "" {
		return "", ErrMissingOwner
	}

	lookup, cacheErr := s.cache.GetMapping(ctx, kind, ownerID, id)
	if cacheErr != nil {
		logrus.Warnf("%s mapping cache read failed: %v", kind, cacheErr)
	} else if lookup.Hit {
		return lookup.UUID, nil
	}

	uuid, err := resolve(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	// without a generation the write could outlive a concurrent eviction
	if cacheErr != nil {
		return uuid, nil
	}
	if err := s.cache.SetMapping(ctx, kind, ownerID, id, uuid, lookup.Generation); err != nil {
		logrus.Warnf("%s mapping cache write failed: %v", kind, err)
	}
	return uuid, nil
}

func (s *CatalogService) MapProduct(ctx context.Context, ownerID, uuid string) (bool, error) {
	created, err := s.store.MapProductToOwner(ctx, ownerID, uuid)
	if err != nil {
		return false, err
	}
	if created {
		s.metrics.MappingsCreated.WithLabelValues(string(cache.ProductKind)).Inc()
		s.evictOwner(ctx, cache.ProductKind, ownerID)
	}
	return created, nil
}

func (s *CatalogService) UnmapProduct(ctx context.Context, ownerID, uuid string) (bool, error) {
	removed, err := s.store.UnmapProductFromOwner(ctx, ownerID, uuid)
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.MappingsRemoved.WithLabelValues(string(cache.ProductKind)).Inc()
		s.evictOwner(ctx, cache.ProductKind, ownerID)
	}
	return removed, nil
}

func (s *CatalogService) MapContent(ctx context.Context, ownerID, uuid string) (bool, error) {
	created, err := s.store.MapContentToOwner(ctx, ownerID, uuid)
	if err != nil {
		return false, err
	}
	if created {
		s.metrics.MappingsCreated.WithLabelValues(string(cache.ContentKind)).Inc()
		s.evictOwner(ctx, cache.ContentKind, ownerID)
	}
	return created, nil
}

func (s *CatalogService) UnmapContent(ctx context.Context, ownerID, uuid string) (bool, error) {
	removed, err := s.store.UnmapContentFromOwner(ctx, ownerID, uuid)
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.MappingsRemoved.WithLabelValues(string(cache.ContentKind)).Inc()
		s.evictOwner(ctx, cache.ContentKind, ownerID)
	}
	return removed, nil
}

// ImportProduct stores a product snapshot for the owner. The snapshot
// converges onto an existing version when same accepts it; the owner's
// previous version of the logical product, if any, is replaced through the
// reference rewriter so its pools follow.
func (s *CatalogService) ImportProduct(ctx context.Context, ownerID string, product *model.Product, same model.ProductMatcher) (*ImportResult, error) {
	if product == nil {
		return nil, ErrMissingEntity
	}
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if same == nil {
		same = model.SameProduct
	}

	result := &ImportResult{}
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		uuid, created, err := tx.CreateProduct(ctx, product, same)
		if err != nil {
			return err
		}
		result.UUID, result.Created = uuid, created

		return importMapping(ctx, result, product.ID, func() (string, error) {
			return tx.ResolveOwnerProductUUID(ctx, ownerID, product.ID)
		}, func() error {
			_, err := tx.MapProductToOwner(ctx, ownerID, uuid)
			return err
		}, func(prev string) error {
			return tx.UpdateOwnerProductReferences(ctx, ownerID, map[string]string{prev: uuid})
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterImport(ctx, cache.ProductKind, ownerID, result)
	return result, nil
}

// ImportContent stores a content snapshot for the owner, with the same
// convergence and replacement rules as ImportProduct.
func (s *CatalogService) ImportContent(ctx context.Context, ownerID string, content *model.Content, same model.ContentMatcher) (*ImportResult, error) {
	if content == nil {
		return nil, ErrMissingEntity
	}
	if ownerID == "" {
		return nil, ErrMissingOwner
	}
	if same == nil {
		same = model.SameContent
	}

	result := &ImportResult{}
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		uuid, created, err := tx.CreateContent(ctx, content, same)
		if err != nil {
			return err
		}
		result.UUID, result.Created = uuid, created

		return importMapping(ctx, result, content.ID, func() (string, error) {
			return tx.ResolveOwnerContentUUID(ctx, ownerID, content.ID)
		}, func() error {
			_, err := tx.MapContentToOwner(ctx, ownerID, uuid)
			return err
		}, func(prev string) error {
			return tx.UpdateOwnerContentReferences(ctx, ownerID, map[string]string{prev: uuid})
		})
	})
	if err != nil {
		return nil, err
	}

	s.afterImport(ctx, cache.ContentKind, ownerID, result)
	return result, nil
}

func importMapping(ctx context.Context, result *ImportResult, id string, current func() (string, error), mapNew func() error, rewrite func(prev string) error) error {
	prev, err := current()
	if errors.Is(err, store.ErrNotFound) {
		return mapNew()
	}
	if err != nil {
		return err
	}
	if prev == result.UUID {
		return nil
	}

	if err := rewrite(prev); err != nil {
		return fmt.Errorf("replace %s with %s for %s: %w", prev, result.UUID, id, err)
	}
	result.Displaced = prev
	return nil
}

func (s *CatalogService) afterImport(ctx context.Context, kind cache.Kind, ownerID string, result *ImportResult) {
	if result.Displaced != "" {
		s.metrics.ReferencesRewritten.WithLabelValues(string(kind)).Inc()
	}
	s.evictOwner(ctx, kind, ownerID)

	logrus.WithFields(logrus.Fields{
		"owner":     ownerID,
		"uuid":      result.UUID,
		"created":   result.Created,
		"displaced": result.Displaced,
	}).Infof("imported %s", kind)
}

// UpdateProductReferences repoints the owner's product references and drops
// the owner's cached resolutions.
func (s *CatalogService) UpdateProductReferences(ctx context.Context, ownerID string, uuidMap map[string]string) error {
	if err := s.store.UpdateOwnerProductReferences(ctx, ownerID, uuidMap); err != nil {
		return err
	}
	s.afterRewrite(ctx, cache.ProductKind, ownerID, uuidMap)
	return nil
}

func (s *CatalogService) UpdateContentReferences(ctx context.Context, ownerID string, uuidMap map[string]string) error {
	if err := s.store.UpdateOwnerContentReferences(ctx, ownerID, uuidMap); err != nil {
		return err
	}
	s.afterRewrite(ctx, cache.ContentKind, ownerID, uuidMap)
	return nil
}

func (s *CatalogService) afterRewrite(ctx context.Context, kind cache.Kind, ownerID string, uuidMap map[string]string) {
	var pairs int
	for from, to := range uuidMap {
		if from != to {
			pairs++
		}
	}
	if pairs == 0 {
		return
	}
	s.metrics.ReferencesRewritten.WithLabelValues(string(kind)).Add(float64(pairs))
	s.evictOwner(ctx, kind, ownerID)
}

func (s *CatalogService) RemoveProductReferences(ctx context.Context, ownerID string, uuids []string) (int64, error) {
	removed, err := s.store.RemoveOwnerProductReferences(ctx, ownerID, uuids)
	if err != nil {
		return 0, err
	}
	s.metrics.MappingsRemoved.WithLabelValues(string(cache.ProductKind)).Add(float64(removed))
	s.evictOwner(ctx, cache.ProductKind, ownerID)
	return removed, nil
}

func (s *CatalogService) RemoveContentReferences(ctx context.Context, ownerID string, uuids []string) (int64, error) {
	removed, err := s.store.RemoveOwnerContentReferences(ctx, ownerID, uuids)
	if err != nil {
		return 0, err
	}
	s.metrics.MappingsRemoved.WithLabelValues(string(cache.ContentKind)).Add(float64(removed))
	s.evictOwner(ctx, cache.ContentKind, ownerID)
	return removed, nil
}

// RebuildOwnerProducts replaces the owner's product mappings wholesale.
func (s *CatalogService) RebuildOwnerProducts(ctx context.Context, ownerID string, idToUUID map[string]string) error {
	if err := s.store.RebuildOwnerProducts(ctx, ownerID, idToUUID); err != nil {
		return err
	}
	s.evictOwner(ctx, cache.ProductKind, ownerID)
	return nil
}

func (s *CatalogService) RebuildOwnerContent(ctx context.Context, ownerID string, idToUUID map[string]string) error {
	if err := s.store.RebuildOwnerContent(ctx, ownerID, idToUUID); err != nil {
		return err
	}
	s.evictOwner(ctx, cache.ContentKind, ownerID)
	return nil
}

// DeleteOwner removes the owner and its references. Versions it alone mapped
// become orphans.
func (s *CatalogService) DeleteOwner(ctx context.Context, ownerID string) error {
	if err := s.store.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}
	s.evictOwner(ctx, cache.ProductKind, ownerID)
	s.evictOwner(ctx, cache.ContentKind, ownerID)
	return nil
}

// ReclaimOrphans deletes unreferenced versions, products first. Deleting a
// product can leave the versions it pointed at unreferenced, so rounds repeat
// until one deletes nothing.
func (s *CatalogService) ReclaimOrphans(ctx context.Context) (*ReclaimResult, error) {
	result := &ReclaimResult{}
	var productsSpared, contentSpared int
	for round := 1; ; round++ {
		products, spared, err := s.reclaim(ctx, cache.ProductKind, s.store.ListOrphanedProductUUIDs, s.store.DeleteOrphanedProducts)
		result.Products = append(result.Products, products...)
		if err != nil {
			return result, err
		}
		productsSpared = spared

		content, spared, err := s.reclaim(ctx, cache.ContentKind, s.store.ListOrphanedContentUUIDs, s.store.DeleteOrphanedContent)
		result.Content = append(result.Content, content...)
		if err != nil {
			return result, err
		}
		contentSpared = spared

		logrus.Debugf("reclaim round %d deleted %d products and %d content", round, len(products), len(content))
		if len(products) == 0 && len(content) == 0 {
			break
		}
	}

	// candidates spared in one round are listed again in the next, so only
	// the last round counts
	s.metrics.OrphansSpared.WithLabelValues(string(cache.ProductKind)).Add(float64(productsSpared))
	s.metrics.OrphansSpared.WithLabelValues(string(cache.ContentKind)).Add(float64(contentSpared))
	result.Spared = productsSpared + contentSpared

	logrus.WithFields(logrus.Fields{
		"products": len(result.Products),
		"content":  len(result.Content),
		"spared":   result.Spared,
	}).Info("reclaimed orphans")
	return result, nil
}

func (s *CatalogService) reclaim(ctx context.Context, kind cache.Kind, list func(context.Context) ([]string, error), remove func(context.Context, []string) ([]string, error)) ([]string, int, error) {
	candidates, err := list(ctx)
	if err != nil || len(candidates) == 0 {
		return nil, 0, err
	}

	deleted, err := remove(ctx, candidates)
	s.metrics.OrphansReclaimed.WithLabelValues(string(kind)).Add(float64(len(deleted)))
	if len(deleted) > 0 {
		if err := s.cache.EvictVersions(ctx, kind, deleted...); err != nil {
			logrus.Warnf("%s cache eviction failed: %v", kind, err)
		}
	}
	if err != nil {
		return deleted, 0, err
	}

	return deleted, len(candidates) - len(deleted), nil
}

func (s *CatalogService) ListProducts(ctx context.Context, args store.QueryArguments) ([]*model.Product, int64, error) {
	return s.store.ListProducts(ctx, args)
}

func (s *CatalogService) ListContent(ctx context.Context, args store.QueryArguments) ([]*model.Content, int64, error) {
	return s.store.ListContent(ctx, args)
}

// ActiveProducts returns a thread-unsafe set of the active product versions.
func (s *CatalogService) ActiveProducts(ctx context.Context, ownerIDs ...string) (mapset.Set[string], error) {
	return s.store.ActiveProductUUIDs(ctx, ownerIDs...)
}

func (s *CatalogService) ActiveContent(ctx context.Context, ownerIDs ...string) (map[string]bool, error) {
	return s.store.ActiveContent(ctx, ownerIDs...)
}

func (s *CatalogService) evictOwner(ctx context.Context, kind cache.Kind, ownerID string) {
	if err := s.cache.EvictOwner(ctx, kind, ownerID); err != nil {
		logrus.Warnf("%s cache eviction for owner %s failed: %v", kind, ownerID, err)
	}
}
