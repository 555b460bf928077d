package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (g *GormStore) GetOwnerProduct(ctx context.Context, ownerID, id string) (*model.Product, error) {
	uuid, err := g.ResolveOwnerProductUUID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return g.GetProduct(ctx, uuid)
}

func (g *GormStore) ResolveOwnerProductUUID(ctx context.Context, ownerID, id string) (string, error) {
	return g.resolveUUID(ctx, productKind, ownerID, id)
}

func (g *GormStore) OwnerProductExists(ctx context.Context, ownerID, uuid string) (bool, error) {
	return g.mappingExists(ctx, productKind, ownerID, uuid)
}

func (g *GormStore) MapProductToOwner(ctx context.Context, ownerID, uuid string) (bool, error) {
	return g.mapToOwner(ctx, productKind, ownerID, uuid)
}

func (g *GormStore) UnmapProductFromOwner(ctx context.Context, ownerID, uuid string) (bool, error) {
	return g.unmapFromOwner(ctx, productKind, ownerID, uuid)
}

func (g *GormStore) ProductOwnerCount(ctx context.Context, uuid string) (int64, error) {
	return g.ownerCount(ctx, productKind, uuid)
}

func (g *GormStore) ListProductOwners(ctx context.Context, uuid string) ([]string, error) {
	return g.listOwners(ctx, productKind, uuid)
}

func (g *GormStore) RebuildOwnerProducts(ctx context.Context, ownerID string, idToUUID map[string]string) error {
	return g.rebuild(ctx, productKind, ownerID, idToUUID)
}

func (g *GormStore) ClearOwnerProducts(ctx context.Context, ownerID string) (int64, error) {
	return g.clearOwner(ctx, productKind, ownerID)
}

func (g *GormStore) GetOwnerContent(ctx context.Context, ownerID, id string) (*model.Content, error) {
	uuid, err := g.ResolveOwnerContentUUID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return g.GetContent(ctx, uuid)
}

func (g *GormStore) ResolveOwnerContentUUID(ctx context.Context, ownerID, id string) (string, error) {
	return g.resolveUUID(ctx, contentKind, ownerID, id)
}

func (g *GormStore) OwnerContentExists(ctx context.Context, ownerID, uuid string) (bool, error) {
	return g.mappingExists(ctx, contentKind, ownerID, uuid)
}

func (g *GormStore) MapContentToOwner(ctx context.Context, ownerID, uuid string) (bool, error) {
	return g.mapToOwner(ctx, contentKind, ownerID, uuid)
}

func (g *GormStore) UnmapContentFromOwner(ctx context.Context, ownerID, uuid string) (bool, error) {
	return g.unmapFromOwner(ctx, contentKind, ownerID, uuid)
}

func (g *GormStore) ContentOwnerCount(ctx context.Context, uuid string) (int64, error) {
	return g.ownerCount(ctx, contentKind, uuid)
}

func (g *GormStore) ListContentOwners(ctx context.Context, uuid string) ([]string, error) {
	return g.listOwners(ctx, contentKind, uuid)
}

func (g *GormStore) RebuildOwnerContent(ctx context.Context, ownerID string, idToUUID map[string]string) error {
	return g.rebuild(ctx, contentKind, ownerID, idToUUID)
}

func (g *GormStore) ClearOwnerContent(ctx context.Context, ownerID string) (int64, error) {
	return g.clearOwner(ctx, contentKind, ownerID)
}

func (g *GormStore) resolveUUID(ctx context.Context, k kind, ownerID, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: %s id is blank", ErrInvalidArgument, k.name)
	}

	var uuids []string
	err := g.db.WithContext(ctx).Model(k.mapping()).
		Where("owner_id = ? AND "+k.idColumn+" = ?", ownerID, id).
		Pluck(k.uuidColumn, &uuids).Error
	if err != nil {
		return "", err
	}
	if len(uuids) == 0 {
		return "", fmt.Errorf("%w: owner %s has no %s %s", ErrNotFound, ownerID, k.name, id)
	}
	return uuids[0], nil
}

func (g *GormStore) mappingExists(ctx context.Context, k kind, ownerID, uuid string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(k.mapping()).
		Where("owner_id = ? AND "+k.uuidColumn+" = ?", ownerID, uuid).
		Count(&count).Error
	return count > 0, err
}

// mapToOwner creates the mapping row. The version row is share-locked for the
// duration so a concurrent reclaim, which takes an exclusive lock before its
// re-check, either sees this mapping or finishes deleting first, in which case
// the version is reported missing.
func (g *GormStore) mapToOwner(ctx context.Context, k kind, ownerID, uuid string) (bool, error) {
	if strings.TrimSpace(ownerID) == "" {
		return false, fmt.Errorf("%w: owner id is blank", ErrInvalidArgument)
	}

	var created bool
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := lock(tx, "SHARE").Model(k.version()).Where("uuid = ?", uuid).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, k.name, uuid)
		}
		id := ids[0]

		var current []string
		err := tx.Model(k.mapping()).
			Where("owner_id = ? AND "+k.idColumn+" = ?", ownerID, id).
			Pluck(k.uuidColumn, &current).Error
		if err != nil {
			return err
		}
		if len(current) > 0 {
			if current[0] == uuid {
				return nil
			}
			return fmt.Errorf("%w: owner %s already maps %s %s to %s", ErrMappingConflict, ownerID, k.name, id, current[0])
		}

		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}, {Name: k.uuidColumn}},
			DoNothing: true,
		}).Create(k.rows(ownerID, map[string]string{uuid: id}))
		if res.Error != nil {
			if duplicated(res.Error) {
				return fmt.Errorf("%w: owner %s %s %s: %v", ErrMappingConflict, ownerID, k.name, id, res.Error)
			}
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	if created {
		logrus.WithFields(logrus.Fields{"owner": ownerID, k.name: uuid}).Debugf("mapped %s to owner", k.name)
	}
	return created, nil
}

func (g *GormStore) unmapFromOwner(ctx context.Context, k kind, ownerID, uuid string) (bool, error) {
	res := g.db.WithContext(ctx).
		Where("owner_id = ? AND "+k.uuidColumn+" = ?", ownerID, uuid).
		Delete(k.mapping())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (g *GormStore) ownerCount(ctx context.Context, k kind, uuid string) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).Model(k.mapping()).Where(k.uuidColumn+" = ?", uuid).Count(&count).Error
	return count, err
}

func (g *GormStore) listOwners(ctx context.Context, k kind, uuid string) ([]string, error) {
	var owners []string
	err := g.db.WithContext(ctx).Model(k.mapping()).
		Where(k.uuidColumn+" = ?", uuid).
		Order("owner_id").
		Pluck("owner_id", &owners).Error
	return owners, err
}

// rebuild replaces all of an owner's mappings of one kind. Validation happens
// before anything is written; the delete and the block inserts share one
// transaction so a failure leaves the previous mappings in place.
func (g *GormStore) rebuild(ctx context.Context, k kind, ownerID string, idToUUID map[string]string) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is blank", ErrInvalidArgument)
	}

	uuidToID := make(map[string]string, len(idToUUID))
	for id, uuid := range idToUUID {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: %s id is blank", ErrInvalidArgument, k.name)
		}
		if prev, ok := uuidToID[uuid]; ok {
			return fmt.Errorf("%w: %s %s mapped under both %s and %s", ErrInvalidArgument, k.name, uuid, prev, id)
		}
		uuidToID[uuid] = id
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := g.versionIDs(tx, k, sortedKeys(uuidToID))
		if err != nil {
			return err
		}
		for _, uuid := range sortedKeys(uuidToID) {
			id, ok := stored[uuid]
			if !ok {
				return fmt.Errorf("%w: %s %s", ErrNotFound, k.name, uuid)
			}
			if id != uuidToID[uuid] {
				return fmt.Errorf("%w: %s %s has id %s, not %s", ErrInvalidArgument, k.name, uuid, id, uuidToID[uuid])
			}
		}

		removed := tx.Where("owner_id = ?", ownerID).Delete(k.mapping())
		if removed.Error != nil {
			return removed.Error
		}

		if len(uuidToID) > 0 {
			if err := tx.CreateInBatches(k.rows(ownerID, uuidToID), g.blockSize).Error; err != nil {
				return err
			}
		}

		logrus.WithFields(logrus.Fields{
			"owner":   ownerID,
			"removed": removed.RowsAffected,
			"mapped":  len(uuidToID),
		}).Infof("rebuilt owner %s mappings", k.name)
		return nil
	})
}

func (g *GormStore) clearOwner(ctx context.Context, k kind, ownerID string) (int64, error) {
	res := g.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(k.mapping())
	return res.RowsAffected, res.Error
}

// requireVersions share-locks the versions in uuids and fails with
// ErrNotFound naming the first one that does not exist.
func (g *GormStore) requireVersions(tx *gorm.DB, k kind, uuids []string) error {
	if len(uuids) == 0 {
		return nil
	}
	ids, err := g.versionIDs(tx, k, uuids)
	if err != nil {
		return err
	}
	for _, uuid := range uuids {
		if _, ok := ids[uuid]; !ok {
			return fmt.Errorf("%w: %s %s", ErrNotFound, k.name, uuid)
		}
	}
	return nil
}

// versionIDs returns the logical ID of each existing version in uuids. The
// rows are share-locked, in uuid order, so a concurrent reclaim cannot delete
// a version this transaction is about to reference.
func (g *GormStore) versionIDs(tx *gorm.DB, k kind, uuids []string) (map[string]string, error) {
	type versionRow struct {
		UUID string
		ID   string
	}

	ids := make(map[string]string, len(uuids))
	for _, block := range query.Partition(uuids, g.blockSize) {
		var rows []versionRow
		if err := lock(tx, "SHARE").Table(k.versions).Select("uuid, id").Where("uuid IN ?", block).Order("uuid").Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			ids[row.UUID] = row.ID
		}
	}
	return ids, nil
}
