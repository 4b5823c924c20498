package models

import (
	"time"

	"gorm.io/datatypes"
)

// VolumeType is a catalog entry driving the per-type quota resources.
type VolumeType struct {
	ID string `gorm:"type:text;primaryKey"` // Type id (UUID).

	Name       string         `gorm:"type:text;not null;uniqueIndex"` // Type name; embedded in resource names.
	ExtraSpecs datatypes.JSON `gorm:"type:jsonb"`                     // Backend capability hints.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (VolumeType) TableName() string {
	return "volume_types"
}

// Volume is the source-of-truth record the volume sync providers count.
type Volume struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProjectID    string `gorm:"type:text;not null;index"` // Owning project.
	VolumeTypeID string `gorm:"type:text;index"`          // Volume type id.

	Size    int64  `gorm:"not null"`                     // Size in gigabytes.
	Status  string `gorm:"type:text;not null"`           // Lifecycle status.
	Deleted bool   `gorm:"not null;default:false;index"` // Soft-delete marker.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Volume) TableName() string {
	return "volumes"
}

// Snapshot is the source-of-truth record the snapshot sync providers count.
type Snapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProjectID    string `gorm:"type:text;not null;index"` // Owning project.
	VolumeID     uint64 `gorm:"not null;index"`           // Parent volume.
	VolumeTypeID string `gorm:"type:text;index"`          // Parent volume's type id.

	VolumeSize int64  `gorm:"not null"`                     // Parent volume size in gigabytes.
	Status     string `gorm:"type:text;not null"`           // Lifecycle status.
	Deleted    bool   `gorm:"not null;default:false;index"` // Soft-delete marker.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Snapshot) TableName() string {
	return "snapshots"
}

// Backup is the source-of-truth record the backup sync providers count.
type Backup struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProjectID string `gorm:"type:text;not null;index"` // Owning project.
	VolumeID  uint64 `gorm:"index"`                    // Backed-up volume.

	Size    int64  `gorm:"not null"`                     // Size in gigabytes.
	Status  string `gorm:"type:text;not null"`           // Lifecycle status.
	Deleted bool   `gorm:"not null;default:false;index"` // Soft-delete marker.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Backup) TableName() string {
	return "backups"
}
