package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Product is an immutable product version. UUID identifies the version, ID is
// the logical product ID shared by every version of the same product.
type Product struct {
	UUID               string            `gorm:"primaryKey;type:varchar(36)" json:"uuid"`
	ID                 string            `gorm:"not null;uniqueIndex:idx_products_id_version" json:"id"`
	EntityVersion      *int64            `gorm:"uniqueIndex:idx_products_id_version" json:"entity_version,omitempty"`
	Name               string            `json:"name"`
	Namespace          string            `gorm:"not null;index" json:"namespace"`
	Multiplier         int64             `json:"multiplier"`
	Attributes         datatypes.JSONMap `json:"attributes,omitempty"`
	DerivedProductUUID *string           `gorm:"type:varchar(36);index" json:"derived_product_uuid,omitempty"`
	Locked             bool              `gorm:"not null" json:"locked"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`

	// edges, persisted in their own tables
	ProvidedProductUUIDs []string         `gorm:"-" json:"provided_product_uuids,omitempty"`
	Contents             []ProductContent `gorm:"-" json:"contents,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// IsCustom reports whether the product lives in an owner namespace.
func (p *Product) IsCustom() bool {
	return p.Namespace != ""
}

func (p *Product) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

// ProductProvidedProduct is a provided-product edge between two versions.
type ProductProvidedProduct struct {
	ProductUUID         string `gorm:"primaryKey;type:varchar(36)"`
	ProvidedProductUUID string `gorm:"primaryKey;type:varchar(36);index"`
}

func (ProductProvidedProduct) TableName() string {
	return "product_provided_products"
}

// ProductContent associates a content version with a product version.
type ProductContent struct {
	ProductUUID string `gorm:"primaryKey;type:varchar(36)" json:"-"`
	ContentUUID string `gorm:"primaryKey;type:varchar(36);index" json:"content_uuid"`
	Enabled     bool   `gorm:"not null" json:"enabled"`
}

func (ProductContent) TableName() string {
	return "product_contents"
}
