package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/emrgen/catalog/internal/model"
	"github.com/emrgen/catalog/internal/query"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func (g *GormStore) GetProduct(ctx context.Context, uuid string) (*model.Product, error) {
	var product model.Product
	err := g.db.WithContext(ctx).Where("uuid = ?", uuid).First(&product).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, uuid)
	}
	if err != nil {
		return nil, err
	}

	if err := g.loadProductEdges(ctx, g.db, []*model.Product{&product}); err != nil {
		return nil, err
	}
	return &product, nil
}

func (g *GormStore) FindProductsByVersion(ctx context.Context, id string, version int64) ([]*model.Product, error) {
	return g.findProductsByVersion(ctx, g.db, id, version)
}

func (g *GormStore) findProductsByVersion(ctx context.Context, db *gorm.DB, id string, version int64) ([]*model.Product, error) {
	var products []*model.Product
	err := db.WithContext(ctx).Where("id = ? AND entity_version = ?", id, version).Order("uuid").Find(&products).Error
	if err != nil {
		return nil, err
	}

	if err := g.loadProductEdges(ctx, db, products); err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct inserts a product version and its edges. A product carrying
// an entity version first looks for an existing version with the same logical
// ID and entity version; when same accepts it the existing UUID is returned
// with created=false, otherwise ErrConvergenceConflict.
func (g *GormStore) CreateProduct(ctx context.Context, product *model.Product, same model.ProductMatcher) (string, bool, error) {
	if strings.TrimSpace(product.ID) == "" {
		return "", false, fmt.Errorf("%w: product id is blank", ErrInvalidArgument)
	}

	var (
		result  string
		created bool
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if product.EntityVersion != nil {
			existing, err := g.findProductsByVersion(ctx, tx, product.ID, *product.EntityVersion)
			if err != nil {
				return err
			}
			for _, e := range existing {
				if same != nil && same(e, product) {
					result = e.UUID
					return nil
				}
			}
			if len(existing) > 0 {
				return fmt.Errorf("%w: product %s version %d exists as %s with different content",
					ErrConvergenceConflict, product.ID, *product.EntityVersion, existing[0].UUID)
			}
		}

		if product.UUID == "" {
			product.UUID = uuid.NewString()
		}
		if err := tx.Create(product).Error; err != nil {
			if duplicated(err) {
				return fmt.Errorf("%w: product %s: %v", ErrConvergenceConflict, product.ID, err)
			}
			return err
		}

		if err := g.createProductEdges(tx, product); err != nil {
			return err
		}

		result, created = product.UUID, true
		return nil
	})
	if err != nil {
		return "", false, err
	}

	if created {
		logrus.Infof("created product %s version %s", product.ID, result)
	} else {
		logrus.Debugf("product %s converged onto version %s", product.ID, result)
	}
	return result, created, nil
}

func (g *GormStore) createProductEdges(tx *gorm.DB, product *model.Product) error {
	targets := slices.Clone(product.ProvidedProductUUIDs)
	if product.DerivedProductUUID != nil {
		targets = append(targets, *product.DerivedProductUUID)
	}
	if err := g.requireVersions(tx, productKind, uniqueSorted(targets)); err != nil {
		return err
	}

	contents := make([]string, 0, len(product.Contents))
	for _, pc := range product.Contents {
		contents = append(contents, pc.ContentUUID)
	}
	if err := g.requireVersions(tx, contentKind, uniqueSorted(contents)); err != nil {
		return err
	}

	if len(product.ProvidedProductUUIDs) > 0 {
		provided := make([]model.ProductProvidedProduct, 0, len(product.ProvidedProductUUIDs))
		for _, child := range uniqueSorted(product.ProvidedProductUUIDs) {
			provided = append(provided, model.ProductProvidedProduct{ProductUUID: product.UUID, ProvidedProductUUID: child})
		}
		if err := tx.CreateInBatches(provided, g.blockSize).Error; err != nil {
			return err
		}
	}

	if len(product.Contents) > 0 {
		for i := range product.Contents {
			product.Contents[i].ProductUUID = product.UUID
		}
		if err := tx.CreateInBatches(product.Contents, g.blockSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func (g *GormStore) loadProductEdges(ctx context.Context, db *gorm.DB, products []*model.Product) error {
	if len(products) == 0 {
		return nil
	}

	byUUID := make(map[string]*model.Product, len(products))
	uuids := make([]string, 0, len(products))
	for _, p := range products {
		byUUID[p.UUID] = p
		uuids = append(uuids, p.UUID)
		p.ProvidedProductUUIDs = nil
		p.Contents = nil
	}

	for _, block := range query.Partition(uuids, g.blockSize) {
		var provided []model.ProductProvidedProduct
		err := db.WithContext(ctx).Where("product_uuid IN ?", block).
			Order("product_uuid, provided_product_uuid").Find(&provided).Error
		if err != nil {
			return err
		}
		for _, edge := range provided {
			p := byUUID[edge.ProductUUID]
			p.ProvidedProductUUIDs = append(p.ProvidedProductUUIDs, edge.ProvidedProductUUID)
		}

		var contents []model.ProductContent
		err = db.WithContext(ctx).Where("product_uuid IN ?", block).
			Order("product_uuid, content_uuid").Find(&contents).Error
		if err != nil {
			return err
		}
		for _, pc := range contents {
			p := byUUID[pc.ProductUUID]
			p.Contents = append(p.Contents, pc)
		}
	}
	return nil
}

// ClearProductEntityVersion removes the entity version of a product version
// so future imports never converge onto it. Existing references are kept.
func (g *GormStore) ClearProductEntityVersion(ctx context.Context, uuid string) error {
	return g.clearEntityVersion(ctx, productKind, uuid)
}

func (g *GormStore) GetContent(ctx context.Context, uuid string) (*model.Content, error) {
	var content model.Content
	err := g.db.WithContext(ctx).Where("uuid = ?", uuid).First(&content).Error
	if notFound(err) {
		return nil, fmt.Errorf("%w: content %s", ErrNotFound, uuid)
	}
	if err != nil {
		return nil, err
	}
	return &content, nil
}

func (g *GormStore) FindContentByVersion(ctx context.Context, id string, version int64) ([]*model.Content, error) {
	var contents []*model.Content
	err := g.db.WithContext(ctx).Where("id = ? AND entity_version = ?", id, version).Order("uuid").Find(&contents).Error
	return contents, err
}

// CreateContent inserts a content version with the same convergence rules as
// CreateProduct.
func (g *GormStore) CreateContent(ctx context.Context, content *model.Content, same model.ContentMatcher) (string, bool, error) {
	if strings.TrimSpace(content.ID) == "" {
		return "", false, fmt.Errorf("%w: content id is blank", ErrInvalidArgument)
	}

	var (
		result  string
		created bool
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if content.EntityVersion != nil {
			var existing []*model.Content
			err := tx.Where("id = ? AND entity_version = ?", content.ID, *content.EntityVersion).Order("uuid").Find(&existing).Error
			if err != nil {
				return err
			}
			for _, e := range existing {
				if same != nil && same(e, content) {
					result = e.UUID
					return nil
				}
			}
			if len(existing) > 0 {
				return fmt.Errorf("%w: content %s version %d exists as %s with different content",
					ErrConvergenceConflict, content.ID, *content.EntityVersion, existing[0].UUID)
			}
		}

		if content.UUID == "" {
			content.UUID = uuid.NewString()
		}
		if err := tx.Create(content).Error; err != nil {
			if duplicated(err) {
				return fmt.Errorf("%w: content %s: %v", ErrConvergenceConflict, content.ID, err)
			}
			return err
		}

		result, created = content.UUID, true
		return nil
	})
	if err != nil {
		return "", false, err
	}

	if created {
		logrus.Infof("created content %s version %s", content.ID, result)
	}
	return result, created, nil
}

func (g *GormStore) ClearContentEntityVersion(ctx context.Context, uuid string) error {
	return g.clearEntityVersion(ctx, contentKind, uuid)
}

func (g *GormStore) clearEntityVersion(ctx context.Context, k kind, uuid string) error {
	res := g.db.WithContext(ctx).Model(k.version()).Where("uuid = ?", uuid).UpdateColumn("entity_version", nil)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, k.name, uuid)
	}

	logrus.Infof("cleared entity version of %s %s", k.name, uuid)
	return nil
}
