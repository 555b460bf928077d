package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Owner{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Product{}, &ProductProvidedProduct{}, &ProductContent{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Content{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&OwnerProduct{}, &OwnerContent{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&Pool{}, &Environment{}, &EnvironmentContent{}); err != nil {
		return err
	}

	return nil
}
