package models

import "time"

// QuotaUsage tracks consumed and provisionally reserved counts for one
// (project, resource) pair. At most one row exists per pair.
type QuotaUsage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProjectID string `gorm:"type:text;not null;uniqueIndex:idx_quota_usages_project_resource"` // Owning project.
	Resource  string `gorm:"type:text;not null;uniqueIndex:idx_quota_usages_project_resource"` // Resource name.

	InUse    int64 `gorm:"not null;default:0"` // Committed consumption; -1 means never synced.
	Reserved int64 `gorm:"not null;default:0"` // Sum of live reservation deltas.

	UntilRefresh *int `gorm:"column:until_refresh"` // Reserve calls left before forced resync; nil disables.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`       // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"` // Stamped only when in_use is resynced.
}

// TableName overrides the default table name.
func (QuotaUsage) TableName() string {
	return "quota_usages"
}

// Reservation is a pending signed delta against a usage row, awaiting commit
// or rollback, void after Expire.
type Reservation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UUID    string `gorm:"type:text;not null;uniqueIndex"` // Opaque reservation id handed to callers.
	UsageID uint64 `gorm:"not null;index"`                 // Referenced quota_usages row.

	ProjectID string `gorm:"type:text;not null;index"` // Owning project.
	Resource  string `gorm:"type:text;not null;index"` // Resource name.

	Delta  int64     `gorm:"not null"`       // Signed quantity claimed.
	Expire time.Time `gorm:"not null;index"` // Absolute expiry; swept after this.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName overrides the default table name.
func (Reservation) TableName() string {
	return "reservations"
}
