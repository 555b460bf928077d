package cache

import (
	"context"

	"github.com/emrgen/catalog/internal/model"
)

var _ CatalogCache = Nop{}

// Nop caches nothing. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) GetMapping(context.Context, Kind, string, string) (Lookup, error) {
	return Lookup{}, nil
}

func (Nop) SetMapping(context.Context, Kind, string, string, string, int64) error { return nil }

func (Nop) EvictOwner(context.Context, Kind, string) error { return nil }

func (Nop) GetProduct(context.Context, string) (*model.Product, bool, error) {
	return nil, false, nil
}

func (Nop) SetProduct(context.Context, *model.Product) error { return nil }

func (Nop) GetContent(context.Context, string) (*model.Content, bool, error) {
	return nil, false, nil
}

func (Nop) SetContent(context.Context, *model.Content) error { return nil }

func (Nop) EvictVersions(context.Context, Kind, ...string) error { return nil }
