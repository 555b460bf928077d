package model

import "time"

// Environment is an owner scoped promotion stage with its own content list.
type Environment struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string `gorm:"not null;type:varchar(64);index"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Environment) TableName() string {
	return "environments"
}

// EnvironmentContent promotes a content version into an environment.
// A nil Enabled defers to the product's enabled flag.
type EnvironmentContent struct {
	EnvironmentID string `gorm:"primaryKey;type:varchar(36)"`
	ContentUUID   string `gorm:"primaryKey;type:varchar(36);index"`
	Enabled       *bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (EnvironmentContent) TableName() string {
	return "environment_contents"
}
