package model

import (
	"time"

	"gorm.io/gorm"
)

// Pool is a subscription owned by an owner. It roots the active-product graph
// while the current time falls in [StartDate, EndDate).
type Pool struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	OwnerID     string    `gorm:"not null;type:varchar(64);index"`
	ProductUUID string    `gorm:"not null;type:varchar(36);index"`
	Quantity    int64     `gorm:"not null"`
	StartDate   time.Time `gorm:"not null;index"`
	EndDate     time.Time `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Pool) TableName() string {
	return "pools"
}

// BeforeCreate stores validity bounds in UTC so they compare consistently on
// backends that keep timestamps as text.
func (p *Pool) BeforeCreate(tx *gorm.DB) error {
	p.StartDate = p.StartDate.UTC()
	p.EndDate = p.EndDate.UTC()
	return nil
}

// ActiveAt reports whether at falls within the pool's validity window.
func (p *Pool) ActiveAt(at time.Time) bool {
	return !at.Before(p.StartDate) && at.Before(p.EndDate)
}
