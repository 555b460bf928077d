package store

import (
	"github.com/emrgen/catalog/internal/model"
)

// kind describes the tables behind one versioned entity type so the mapping,
// rewrite and reclaim logic can be shared between products and content.
type kind struct {
	name       string
	versions   string
	mappings   string
	uuidColumn string
	idColumn   string
	version    func() any
	mapping    func() any
	rows       func(ownerID string, uuidToID map[string]string) any
}

var productKind = kind{
	name:       "product",
	versions:   "products",
	mappings:   "owner_products",
	uuidColumn: "product_uuid",
	idColumn:   "product_id",
	version:    func() any { return &model.Product{} },
	mapping:    func() any { return &model.OwnerProduct{} },
	rows: func(ownerID string, uuidToID map[string]string) any {
		rows := make([]model.OwnerProduct, 0, len(uuidToID))
		for _, uuid := range sortedKeys(uuidToID) {
			rows = append(rows, model.OwnerProduct{OwnerID: ownerID, ProductUUID: uuid, ProductID: uuidToID[uuid]})
		}
		return &rows
	},
}

var contentKind = kind{
	name:       "content",
	versions:   "contents",
	mappings:   "owner_contents",
	uuidColumn: "content_uuid",
	idColumn:   "content_id",
	version:    func() any { return &model.Content{} },
	mapping:    func() any { return &model.OwnerContent{} },
	rows: func(ownerID string, uuidToID map[string]string) any {
		rows := make([]model.OwnerContent, 0, len(uuidToID))
		for _, uuid := range sortedKeys(uuidToID) {
			rows = append(rows, model.OwnerContent{OwnerID: ownerID, ContentUUID: uuid, ContentID: uuidToID[uuid]})
		}
		return &rows
	},
}
