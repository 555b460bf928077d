package model

import (
	"encoding/json"
	"time"
)

// Content is an immutable content version.
type Content struct {
	UUID               string    `gorm:"primaryKey;type:varchar(36)" json:"uuid"`
	ID                 string    `gorm:"not null;uniqueIndex:idx_contents_id_version" json:"id"`
	EntityVersion      *int64    `gorm:"uniqueIndex:idx_contents_id_version" json:"entity_version,omitempty"`
	Type               string    `json:"type"`
	Label              string    `json:"label"`
	Name               string    `json:"name"`
	Vendor             string    `json:"vendor"`
	ContentURL         string    `gorm:"column:content_url" json:"content_url"`
	GPGURL             string    `gorm:"column:gpg_url" json:"gpg_url"`
	Arches             string    `json:"arches"`
	RequiredTags       string    `json:"required_tags"`
	ReleaseVersion     string    `json:"release_version"`
	MetadataExpiration *int64    `json:"metadata_expiration,omitempty"`
	Namespace          string    `gorm:"not null;index" json:"namespace"`
	Locked             bool      `gorm:"not null" json:"locked"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Content) TableName() string {
	return "contents"
}

func (c *Content) IsCustom() bool {
	return c.Namespace != ""
}

func (c *Content) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}
