package db

import (
	"fmt"

	"github.com/lijhnihaoa/blockquota/internal/models"

	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all quota tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.QuotaUsage{},
		&models.Reservation{},
		&models.ProjectQuota{},
		&models.QuotaClassQuota{},
		&models.VolumeType{},
		&models.Volume{},
		&models.Snapshot{},
		&models.Backup{},
	)
}
