package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// repointFunc moves references other than the owner mapping from old to new.
type repointFunc func(tx *gorm.DB, ownerID, from, to string) (int64, error)

// UpdateOwnerProductReferences repoints the owner's product mappings and
// pools from each old version to its new version. Other owners that map an
// old version keep it. Product edges are never changed.
func (g *GormStore) UpdateOwnerProductReferences(ctx context.Context, ownerID string, uuidMap map[string]string) error {
	return g.updateReferences(ctx, productKind, ownerID, uuidMap, g.repointPools)
}

// UpdateOwnerContentReferences repoints the owner's content mappings and the
// environment content of the owner's environments.
func (g *GormStore) UpdateOwnerContentReferences(ctx context.Context, ownerID string, uuidMap map[string]string) error {
	return g.updateReferences(ctx, contentKind, ownerID, uuidMap, g.repointEnvironments)
}

func (g *GormStore) updateReferences(ctx context.Context, k kind, ownerID string, uuidMap map[string]string, repoint repointFunc) error {
	pairs, err := rewritePairs(uuidMap)
	if err != nil || len(pairs) == 0 {
		return err
	}
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner id is blank", ErrInvalidArgument)
	}
	if err := query.CheckLimit(len(pairs), g.paramLimit); err != nil {
		return err
	}

	news := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		news = append(news, pair[1])
	}

	var mapped, repointed int64
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := g.versionIDs(tx, k, uniqueSorted(news))
		if err != nil {
			return err
		}

		for _, pair := range pairs {
			from, to := pair[0], pair[1]
			id, ok := ids[to]
			if !ok {
				return fmt.Errorf("%w: %s %s", ErrNotFound, k.name, to)
			}

			n, err := g.repointMapping(tx, k, ownerID, from, to, id)
			if err != nil {
				return err
			}
			mapped += n

			n, err = repoint(tx, ownerID, from, to)
			if err != nil {
				return err
			}
			repointed += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"owner":     ownerID,
		"pairs":     len(pairs),
		"mappings":  mapped,
		"repointed": repointed,
	}).Infof("rewrote owner %s references", k.name)
	return nil
}

// rewritePairs returns the (old, new) pairs in old-key order with no-op pairs
// dropped. A new version that is itself rewritten in the same call would make
// the result depend on the order pairs are applied, so chains are rejected.
func rewritePairs(uuidMap map[string]string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(uuidMap))
	for _, from := range sortedKeys(uuidMap) {
		to := uuidMap[from]
		if from == to {
			continue
		}
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("%w: blank version in rewrite %q -> %q", ErrInvalidArgument, from, to)
		}
		pairs = append(pairs, [2]string{from, to})
	}

	for _, pair := range pairs {
		if next, ok := uuidMap[pair[1]]; ok && next != pair[1] {
			return nil, fmt.Errorf("%w: %s is rewritten to %s and from %s in one call", ErrInvalidArgument, pair[1], next, pair[0])
		}
	}
	return pairs, nil
}

// repointMapping moves the owner's mapping row from old to new. When the owner
// already maps new the old row is dropped instead.
func (g *GormStore) repointMapping(tx *gorm.DB, k kind, ownerID, from, to, newID string) (int64, error) {
	var count int64
	err := tx.Model(k.mapping()).
		Where("owner_id = ? AND "+k.uuidColumn+" = ?", ownerID, to).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	scoped := tx.Where("owner_id = ? AND "+k.uuidColumn+" = ?", ownerID, from)
	if count > 0 {
		res := scoped.Delete(k.mapping())
		return res.RowsAffected, res.Error
	}

	res := tx.Model(k.mapping()).
		Where("owner_id = ? AND "+k.uuidColumn+" = ?", ownerID, from).
		Updates(map[string]any{k.uuidColumn: to, k.idColumn: newID})
	if res.Error != nil {
		if duplicated(res.Error) {
			return 0, fmt.Errorf("%w: owner %s already maps %s id %s", ErrMappingConflict, ownerID, k.name, newID)
		}
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (g *GormStore) repointPools(tx *gorm.DB, ownerID, from, to string) (int64, error) {
	res := tx.Model(&model.Pool{}).
		Where("owner_id = ? AND product_uuid = ?", ownerID, from).
		Update("product_uuid", to)
	return res.RowsAffected, res.Error
}

// repointEnvironments repoints only the environments of the owner that
// reference old, found before any row is changed. An environment that already
// holds new loses its old row.
func (g *GormStore) repointEnvironments(tx *gorm.DB, ownerID, from, to string) (int64, error) {
	var envIDs []string
	err := tx.Model(&model.EnvironmentContent{}).
		Joins("JOIN environments ON environments.id = environment_contents.environment_id").
		Where("environments.owner_id = ? AND environment_contents.content_uuid = ?", ownerID, from).
		Order("environment_contents.environment_id").
		Pluck("environment_contents.environment_id", &envIDs).Error
	if err != nil || len(envIDs) == 0 {
		return 0, err
	}

	var total int64
	for _, block := range query.Partition(envIDs, g.blockSize) {
		var holding []string
		err := tx.Model(&model.EnvironmentContent{}).
			Where("environment_id IN ? AND content_uuid = ?", block, to).
			Pluck("environment_id", &holding).Error
		if err != nil {
			return total, err
		}

		if len(holding) > 0 {
			res := tx.Where("environment_id IN ? AND content_uuid = ?", holding, from).Delete(&model.EnvironmentContent{})
			if res.Error != nil {
				return total, res.Error
			}
			total += res.RowsAffected
		}

		rest := without(block, holding)
		if len(rest) == 0 {
			continue
		}
		res := tx.Model(&model.EnvironmentContent{}).
			Where("environment_id IN ? AND content_uuid = ?", rest, from).
			Update("content_uuid", to)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// RemoveOwnerProductReferences drops the owner's mappings of the given
// product versions. Pools are left alone; a pool of an unmapped product still
// keeps the version from being reclaimed.
func (g *GormStore) RemoveOwnerProductReferences(ctx context.Context, ownerID string, uuids []string) (int64, error) {
	return g.removeReferences(ctx, productKind, ownerID, uuids, nil)
}

// RemoveOwnerContentReferences drops the owner's mappings of the given content
// versions and removes them from the owner's environments.
func (g *GormStore) RemoveOwnerContentReferences(ctx context.Context, ownerID string, uuids []string) (int64, error) {
	return g.removeReferences(ctx, contentKind, ownerID, uuids, func(tx *gorm.DB, block []string) error {
		owned := tx.Model(&model.Environment{}).Select("id").Where("owner_id = ?", ownerID)
		return tx.Where("content_uuid IN ? AND environment_id IN (?)", block, owned).
			Delete(&model.EnvironmentContent{}).Error
	})
}

func (g *GormStore) removeReferences(ctx context.Context, k kind, ownerID string, uuids []string, extra func(tx *gorm.DB, block []string) error) (int64, error) {
	uuids = uniqueSorted(uuids)
	if len(uuids) == 0 {
		return 0, nil
	}
	if err := query.CheckLimit(len(uuids), g.paramLimit); err != nil {
		return 0, err
	}

	var removed int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, block := range query.Partition(uuids, g.blockSize) {
			res := tx.Where("owner_id = ? AND "+k.uuidColumn+" IN ?", ownerID, block).Delete(k.mapping())
			if res.Error != nil {
				return res.Error
			}
			removed += res.RowsAffected

			if extra != nil {
				if err := extra(tx, block); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{"owner": ownerID, "removed": removed}).Infof("removed owner %s references", k.name)
	return removed, nil
}

func without(values, drop []string) []string {
	if len(drop) == 0 {
		return values
	}
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := skip[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
