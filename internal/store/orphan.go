package store

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// referenceFunc returns the members of block that something other than an
// owner mapping still points at.
type referenceFunc func(tx *gorm.DB, block []string) ([]string, error)

// cleanupFunc removes the rows that hang off versions about to be deleted.
type cleanupFunc func(tx *gorm.DB, block []string) error

// ListOrphanedProductUUIDs returns the product versions no owner maps.
func (g *GormStore) ListOrphanedProductUUIDs(ctx context.Context) ([]string, error) {
	return g.listOrphans(ctx, productKind)
}

// DeleteOrphanedProducts deletes the candidates that are still unreferenced
// once their rows are locked. A candidate that gained a mapping, a pool or an
// incoming product edge since it was listed survives.
func (g *GormStore) DeleteOrphanedProducts(ctx context.Context, uuids []string) ([]string, error) {
	return g.deleteOrphans(ctx, productKind, uuids, productReferences, productCleanup)
}

func (g *GormStore) ListOrphanedContentUUIDs(ctx context.Context) ([]string, error) {
	return g.listOrphans(ctx, contentKind)
}

// DeleteOrphanedContent deletes the candidates that are still unreferenced
// once their rows are locked. Content used by any product version survives.
func (g *GormStore) DeleteOrphanedContent(ctx context.Context, uuids []string) ([]string, error) {
	return g.deleteOrphans(ctx, contentKind, uuids, contentReferences, contentCleanup)
}

func (g *GormStore) listOrphans(ctx context.Context, k kind) ([]string, error) {
	var uuids []string
	err := g.db.WithContext(ctx).Table(k.versions).
		Joins("LEFT JOIN "+k.mappings+" ON "+k.mappings+"."+k.uuidColumn+" = "+k.versions+".uuid").
		Where(k.mappings + ".owner_id IS NULL").
		Order(k.versions + ".uuid").
		Pluck(k.versions+".uuid", &uuids).Error
	return uuids, err
}

// deleteOrphans commits each block in its own transaction. Every block locks
// its candidate rows, re-reads their references and deletes only the
// unreferenced ones, so whatever has been committed when a later block fails
// was unreferenced at its own commit.
func (g *GormStore) deleteOrphans(ctx context.Context, k kind, uuids []string, references referenceFunc, cleanup cleanupFunc) ([]string, error) {
	uuids = uniqueSorted(uuids)
	deleted := make([]string, 0, len(uuids))

	for _, block := range query.Partition(uuids, g.blockSize) {
		var removed, remapped []string
		err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var locked []string
			if err := lock(tx, "UPDATE").Model(k.version()).Where("uuid IN ?", block).Order("uuid").Pluck("uuid", &locked).Error; err != nil {
				return err
			}
			if len(locked) == 0 {
				return nil
			}

			var mapped []string
			err := tx.Model(k.mapping()).Where(k.uuidColumn+" IN ?", locked).Distinct().Pluck(k.uuidColumn, &mapped).Error
			if err != nil {
				return err
			}
			remapped = mapped
			referenced := mapset.NewThreadUnsafeSet(mapped...)

			others, err := references(tx, locked)
			if err != nil {
				return err
			}
			referenced.Append(others...)

			for _, uuid := range locked {
				if !referenced.Contains(uuid) {
					removed = append(removed, uuid)
				}
			}
			if len(removed) == 0 {
				return nil
			}

			if err := cleanup(tx, removed); err != nil {
				return err
			}
			return tx.Where("uuid IN ?", removed).Delete(k.version()).Error
		})
		if err != nil {
			return deleted, err
		}

		if len(remapped) > 0 {
			logrus.WithFields(logrus.Fields{"kind": k.name, "versions": remapped}).Warn("orphan candidates were mapped again before reclaim")
		}
		if spared := len(block) - len(removed); spared > 0 {
			logrus.WithFields(logrus.Fields{"kind": k.name, "spared": spared}).Debug("orphan candidates no longer reclaimable")
		}
		deleted = append(deleted, removed...)
	}

	if len(deleted) > 0 {
		logrus.Infof("reclaimed %d orphaned %s versions", len(deleted), k.name)
	}
	return deleted, nil
}

func productReferences(tx *gorm.DB, block []string) ([]string, error) {
	var pooled, provided, derived []string
	if err := tx.Model(&model.Pool{}).Where("product_uuid IN ?", block).Distinct().Pluck("product_uuid", &pooled).Error; err != nil {
		return nil, err
	}
	err := tx.Model(&model.ProductProvidedProduct{}).
		Where("provided_product_uuid IN ? AND product_uuid <> provided_product_uuid", block).
		Distinct().Pluck("provided_product_uuid", &provided).Error
	if err != nil {
		return nil, err
	}
	err = tx.Model(&model.Product{}).
		Where("derived_product_uuid IN ? AND uuid <> derived_product_uuid", block).
		Distinct().Pluck("derived_product_uuid", &derived).Error
	if err != nil {
		return nil, err
	}
	return append(append(pooled, provided...), derived...), nil
}

func productCleanup(tx *gorm.DB, block []string) error {
	if err := tx.Where("product_uuid IN ?", block).Delete(&model.ProductProvidedProduct{}).Error; err != nil {
		return err
	}
	return tx.Where("product_uuid IN ?", block).Delete(&model.ProductContent{}).Error
}

func contentReferences(tx *gorm.DB, block []string) ([]string, error) {
	var used []string
	err := tx.Model(&model.ProductContent{}).Where("content_uuid IN ?", block).Distinct().Pluck("content_uuid", &used).Error
	return used, err
}

func contentCleanup(tx *gorm.DB, block []string) error {
	return tx.Where("content_uuid IN ?", block).Delete(&model.EnvironmentContent{}).Error
}
