package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lijhnihaoa/blockquota/internal/models"
	"github.com/lijhnihaoa/blockquota/internal/quota"
)

// DefaultQuotaClass collects overrides that replace configured defaults
// for every project.
const DefaultQuotaClass = "default"

// ProjectQuota returns the override recorded for one project resource.
func (s *Store) ProjectQuota(ctx context.Context, projectID, resource string) (int64, error) {
	var row models.ProjectQuota
	errFind := s.conn.WithContext(ctx).
		Where("project_id = ? AND resource = ?", projectID, resource).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return 0, &quota.ProjectQuotaNotFoundError{ProjectID: projectID, Resource: resource}
	}
	if errFind != nil {
		return 0, errFind
	}
	return row.HardLimit, nil
}

// ProjectQuotas returns every override recorded for a project.
func (s *Store) ProjectQuotas(ctx context.Context, projectID string) (map[string]int64, error) {
	var rows []models.ProjectQuota
	errFind := s.conn.WithContext(ctx).
		Where("project_id = ?", projectID).
		Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Resource] = row.HardLimit
	}
	return out, nil
}

// SetProjectQuota records or replaces a per-project override.
func (s *Store) SetProjectQuota(ctx context.Context, projectID, resource string, limit int64) error {
	row := models.ProjectQuota{ProjectID: projectID, Resource: resource, HardLimit: limit}
	return s.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "resource"}},
			DoUpdates: clause.AssignmentColumns([]string{"hard_limit", "updated_at"}),
		}).
		Create(&row).Error
}

// DestroyProjectQuota removes one per-project override. Removing an
// absent override is not an error.
func (s *Store) DestroyProjectQuota(ctx context.Context, projectID, resource string) error {
	return s.conn.WithContext(ctx).
		Where("project_id = ? AND resource = ?", projectID, resource).
		Delete(&models.ProjectQuota{}).Error
}

// ClassQuota returns the override recorded for one class resource.
func (s *Store) ClassQuota(ctx context.Context, className, resource string) (int64, error) {
	var row models.QuotaClassQuota
	errFind := s.conn.WithContext(ctx).
		Where("class_name = ? AND resource = ?", className, resource).
		First(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return 0, &quota.QuotaClassNotFoundError{ClassName: className, Resource: resource}
	}
	if errFind != nil {
		return 0, errFind
	}
	return row.HardLimit, nil
}

// ClassQuotas returns every override recorded under a quota class.
func (s *Store) ClassQuotas(ctx context.Context, className string) (map[string]int64, error) {
	var rows []models.QuotaClassQuota
	errFind := s.conn.WithContext(ctx).
		Where("class_name = ?", className).
		Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Resource] = row.HardLimit
	}
	return out, nil
}

// ClassDefaults returns the overrides of the "default" quota class.
func (s *Store) ClassDefaults(ctx context.Context) (map[string]int64, error) {
	return s.ClassQuotas(ctx, DefaultQuotaClass)
}

// SetClassQuota records or replaces a class override.
func (s *Store) SetClassQuota(ctx context.Context, className, resource string, limit int64) error {
	row := models.QuotaClassQuota{ClassName: className, Resource: resource, HardLimit: limit}
	return s.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "class_name"}, {Name: "resource"}},
			DoUpdates: clause.AssignmentColumns([]string{"hard_limit", "updated_at"}),
		}).
		Create(&row).Error
}

// DestroyClassQuota removes one class override.
func (s *Store) DestroyClassQuota(ctx context.Context, className, resource string) error {
	return s.conn.WithContext(ctx).
		Where("class_name = ? AND resource = ?", className, resource).
		Delete(&models.QuotaClassQuota{}).Error
}

// RenameResource moves every override, usage row and open reservation
// from one resource name to another.
func (s *Store) RenameResource(ctx context.Context, oldName, newName string) error {
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		for _, model := range []any{
			&models.ProjectQuota{},
			&models.QuotaClassQuota{},
			&models.QuotaUsage{},
			&models.Reservation{},
		} {
			errUpdate := tx.Model(model).
				Where("resource = ?", oldName).
				Update("resource", newName).Error
			if errUpdate != nil {
				return errUpdate
			}
		}
		return nil
	})
}
