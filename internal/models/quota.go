package models

import "time"

// ProjectQuota is an explicit per-project limit override, the highest
// precedence level of limit resolution.
type ProjectQuota struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProjectID string `gorm:"type:text;not null;uniqueIndex:idx_quotas_project_resource"` // Owning project.
	Resource  string `gorm:"type:text;not null;uniqueIndex:idx_quotas_project_resource"` // Resource name.

	HardLimit int64 `gorm:"not null"` // Limit value; -1 is unlimited.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (ProjectQuota) TableName() string {
	return "quotas"
}

// QuotaClassQuota is a limit override bundled under a named quota class.
// The class named "default" overrides configured defaults for everyone.
type QuotaClassQuota struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ClassName string `gorm:"type:text;not null;uniqueIndex:idx_quota_classes_class_resource"` // Quota class name.
	Resource  string `gorm:"type:text;not null;uniqueIndex:idx_quota_classes_class_resource"` // Resource name.

	HardLimit int64 `gorm:"not null"` // Limit value; -1 is unlimited.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (QuotaClassQuota) TableName() string {
	return "quota_classes"
}
