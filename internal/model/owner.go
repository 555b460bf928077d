package model

import "time"

// Owner is a tenant with its own view of the shared catalog.
type Owner struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Key         string `gorm:"not null;uniqueIndex"`
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Owner) TableName() string {
	return "owners"
}

// OwnerProduct maps an owner to the product version it currently sees.
// ProductID duplicates the version's logical ID so the database can enforce
// one version per logical ID per owner.
type OwnerProduct struct {
	OwnerID     string `gorm:"primaryKey;type:varchar(64);uniqueIndex:idx_owner_products_owner_product_id"`
	ProductUUID string `gorm:"primaryKey;type:varchar(36);index"`
	ProductID   string `gorm:"not null;uniqueIndex:idx_owner_products_owner_product_id"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OwnerProduct) TableName() string {
	return "owner_products"
}

// OwnerContent maps an owner to the content version it currently sees.
type OwnerContent struct {
	OwnerID     string `gorm:"primaryKey;type:varchar(64);uniqueIndex:idx_owner_contents_owner_content_id"`
	ContentUUID string `gorm:"primaryKey;type:varchar(36);index"`
	ContentID   string `gorm:"not null;uniqueIndex:idx_owner_contents_owner_content_id"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OwnerContent) TableName() string {
	return "owner_contents"
}
