package model

import (
	"bytes"
	"encoding/json"

	mapset "github.com/deckarep/golang-set/v2"
)

// ProductMatcher decides whether candidate may converge onto existing. It is
// only called for two versions sharing logical ID and entity version, and must
// compare everything that makes up the product's content, edges included.
type ProductMatcher func(existing, candidate *Product) bool

// ContentMatcher is the content counterpart of ProductMatcher.
type ContentMatcher func(existing, candidate *Content) bool

// SameProduct is the strict default matcher: every content field, the derived
// product and both edge sets must be equal.
func SameProduct(existing, candidate *Product) bool {
	if existing.ID != candidate.ID ||
		existing.Name != candidate.Name ||
		existing.Namespace != candidate.Namespace ||
		existing.Multiplier != candidate.Multiplier ||
		!sameString(existing.DerivedProductUUID, candidate.DerivedProductUUID) {
		return false
	}

	if !sameJSON(existing.Attributes, candidate.Attributes) {
		return false
	}

	provided := mapset.NewThreadUnsafeSet(existing.ProvidedProductUUIDs...)
	if !provided.Equal(mapset.NewThreadUnsafeSet(candidate.ProvidedProductUUIDs...)) {
		return false
	}

	return contentKeys(existing.Contents).Equal(contentKeys(candidate.Contents))
}

type contentKey struct {
	uuid    string
	enabled bool
}

// the owning product UUID differs between a stored version and a candidate
func contentKeys(contents []ProductContent) mapset.Set[contentKey] {
	keys := mapset.NewThreadUnsafeSet[contentKey]()
	for _, pc := range contents {
		keys.Add(contentKey{uuid: pc.ContentUUID, enabled: pc.Enabled})
	}
	return keys
}

// SameContent is the strict default content matcher.
func SameContent(existing, candidate *Content) bool {
	return existing.ID == candidate.ID &&
		existing.Type == candidate.Type &&
		existing.Label == candidate.Label &&
		existing.Name == candidate.Name &&
		existing.Vendor == candidate.Vendor &&
		existing.ContentURL == candidate.ContentURL &&
		existing.GPGURL == candidate.GPGURL &&
		existing.Arches == candidate.Arches &&
		existing.RequiredTags == candidate.RequiredTags &&
		existing.ReleaseVersion == candidate.ReleaseVersion &&
		existing.Namespace == candidate.Namespace &&
		sameInt(existing.MetadataExpiration, candidate.MetadataExpiration)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// attribute values read back from JSON columns lose their Go types, so compare
// the canonical encoding instead of the maps
func sameJSON(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
