package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emrgen/catalog/internal/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (g *GormStore) CreateOwner(ctx context.Context, owner *model.Owner) error {
	if strings.TrimSpace(owner.Key) == "" {
		return fmt.Errorf("%w: owner key is blank", ErrInvalidArgument)
	}
	if owner.ID == "" {
		owner.ID = uuid.NewString()
	}
	return g.db.WithContext(ctx).Create(owner).Error
}

func (g *GormStore) GetOwner(ctx context.Context, id string) (*model.Owner, error) {
	var owner model.Owner
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&owner).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: owner %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &owner, nil
}

// DeleteOwner removes the owner together with its mappings, pools and
// environments. The versions it mapped are left for the orphan reclaimer.
func (g *GormStore) DeleteOwner(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		envs := tx.Model(&model.Environment{}).Select("id").Where("owner_id = ?", id)
		if err := tx.Where("environment_id IN (?)", envs).Delete(&model.EnvironmentContent{}).Error; err != nil {
			return err
		}
		for _, m := range []any{&model.Environment{}, &model.Pool{}, &model.OwnerProduct{}, &model.OwnerContent{}} {
			if err := tx.Where("owner_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id = ?", id).Delete(&model.Owner{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: owner %s", ErrNotFound, id)
		}

		logrus.Infof("deleted owner %s", id)
		return nil
	})
}

func (g *GormStore) CreatePool(ctx context.Context, pool *model.Pool) error {
	if strings.TrimSpace(pool.OwnerID) == "" {
		return fmt.Errorf("%w: pool owner is blank", ErrInvalidArgument)
	}
	if !pool.EndDate.After(pool.StartDate) {
		return fmt.Errorf("%w: pool ends at %s, before it starts at %s", ErrInvalidArgument, pool.EndDate, pool.StartDate)
	}
	if pool.ID == "" {
		pool.ID = uuid.NewString()
	}

	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.requireVersions(tx, productKind, []string{pool.ProductUUID}); err != nil {
			return err
		}
		return tx.Create(pool).Error
	})
}

// ListPools returns the owner's pools valid at the given time, or all of them
// when at is zero.
func (g *GormStore) ListPools(ctx context.Context, ownerID string, at time.Time) ([]*model.Pool, error) {
	db := g.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if !at.IsZero() {
		db = db.Where("start_date <= ? AND end_date > ?", at.UTC(), at.UTC())
	}

	var pools []*model.Pool
	err := db.Order("start_date, id").Find(&pools).Error
	return pools, err
}

func (g *GormStore) CreateEnvironment(ctx context.Context, env *model.Environment) error {
	if strings.TrimSpace(env.OwnerID) == "" {
		return fmt.Errorf("%w: environment owner is blank", ErrInvalidArgument)
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	return g.db.WithContext(ctx).Create(env).Error
}

// AddEnvironmentContent promotes a content version into an environment,
// replacing the enabled override when it is already there.
func (g *GormStore) AddEnvironmentContent(ctx context.Context, envID string, contentUUID string, enabled *bool) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := g.requireVersions(tx, contentKind, []string{contentUUID}); err != nil {
			return err
		}

		row := &model.EnvironmentContent{EnvironmentID: envID, ContentUUID: contentUUID, Enabled: enabled}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "environment_id"}, {Name: "content_uuid"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).Create(row).Error
	})
}

func (g *GormStore) ListEnvironmentContent(ctx context.Context, envID string) ([]*model.EnvironmentContent, error) {
	var rows []*model.EnvironmentContent
	err := g.db.WithContext(ctx).Where("environment_id = ?", envID).Order("content_uuid").Find(&rows).Error
	return rows, err
}
