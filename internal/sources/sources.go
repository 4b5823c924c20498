// Package sources recounts quota usage from the source-of-truth tables
// and exposes the volume-type catalog the resource registry is built
// from.
package sources

import (
	"context"

	"gorm.io/gorm"

	"github.com/lijhnihaoa/blockquota/internal/config"
	"github.com/lijhnihaoa/blockquota/internal/models"
	"github.com/lijhnihaoa/blockquota/internal/quota"
	"github.com/lijhnihaoa/blockquota/internal/store"
)

// Catalog reads volume types from the database.
type Catalog struct {
	conn *gorm.DB
}

var _ quota.VolumeTypeCatalog = (*Catalog)(nil)

// NewCatalog wraps a database connection.
func NewCatalog(conn *gorm.DB) *Catalog {
	return &Catalog{conn: conn}
}

// VolumeTypes lists every volume type, ordered by name.
func (c *Catalog) VolumeTypes(ctx context.Context) ([]quota.VolumeType, error) {
	var rows []models.VolumeType
	errFind := c.conn.WithContext(ctx).Order("name").Find(&rows).Error
	if errFind != nil {
		return nil, errFind
	}
	types := make([]quota.VolumeType, len(rows))
	for i, row := range rows {
		types[i] = quota.VolumeType{ID: row.ID, Name: row.Name}
	}
	return types, nil
}

// RegisterSyncs binds the recount providers for every reservable
// resource. Providers run inside the reservation transaction so the
// recount and the usage write land atomically.
func RegisterSyncs(s *store.Store, cfg *config.Config) {
	s.RegisterSync(quota.SyncVolumes, syncVolumes)
	s.RegisterSync(quota.SyncSnapshots, syncSnapshots)
	s.RegisterSync(quota.SyncBackups, syncBackups)
	s.RegisterSync(quota.SyncGigabytes, syncGigabytes(cfg))
	s.RegisterSync(quota.SyncBackupGigabytes, syncBackupGigabytes)
}

func syncVolumes(ctx context.Context, tx *gorm.DB, projectID string, res quota.Resource) (map[string]int64, error) {
	q := tx.WithContext(ctx).Model(&models.Volume{}).
		Where("project_id = ? AND deleted = ?", projectID, false)
	if res.VolumeTypeID != "" {
		q = q.Where("volume_type_id = ?", res.VolumeTypeID)
	}
	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return nil, errCount
	}
	return map[string]int64{res.Name: count}, nil
}

func syncSnapshots(ctx context.Context, tx *gorm.DB, projectID string, res quota.Resource) (map[string]int64, error) {
	q := tx.WithContext(ctx).Model(&models.Snapshot{}).
		Where("project_id = ? AND deleted = ?", projectID, false)
	if res.VolumeTypeID != "" {
		q = q.Where("volume_type_id = ?", res.VolumeTypeID)
	}
	var count int64
	if errCount := q.Count(&count).Error; errCount != nil {
		return nil, errCount
	}
	return map[string]int64{res.Name: count}, nil
}

func syncBackups(ctx context.Context, tx *gorm.DB, projectID string, res quota.Resource) (map[string]int64, error) {
	var count int64
	errCount := tx.WithContext(ctx).Model(&models.Backup{}).
		Where("project_id = ? AND deleted = ?", projectID, false).
		Count(&count).Error
	if errCount != nil {
		return nil, errCount
	}
	return map[string]int64{res.Name: count}, nil
}

// syncGigabytes sums volume capacity, plus snapshot capacity unless
// snapshot gigabytes are exempted by configuration.
func syncGigabytes(cfg *config.Config) store.SyncFunc {
	return func(ctx context.Context, tx *gorm.DB, projectID string, res quota.Resource) (map[string]int64, error) {
		volQ := tx.WithContext(ctx).Model(&models.Volume{}).
			Where("project_id = ? AND deleted = ?", projectID, false)
		if res.VolumeTypeID != "" {
			volQ = volQ.Where("volume_type_id = ?", res.VolumeTypeID)
		}
		var total int64
		errSum := volQ.Select("COALESCE(SUM(size), 0)").Scan(&total).Error
		if errSum != nil {
			return nil, errSum
		}

		if !cfg.Quota.NoSnapshotGBQuota {
			snapQ := tx.WithContext(ctx).Model(&models.Snapshot{}).
				Where("project_id = ? AND deleted = ?", projectID, false)
			if res.VolumeTypeID != "" {
				snapQ = snapQ.Where("volume_type_id = ?", res.VolumeTypeID)
			}
			var snapTotal int64
			errSnap := snapQ.Select("COALESCE(SUM(volume_size), 0)").Scan(&snapTotal).Error
			if errSnap != nil {
				return nil, errSnap
			}
			total += snapTotal
		}
		return map[string]int64{res.Name: total}, nil
	}
}

func syncBackupGigabytes(ctx context.Context, tx *gorm.DB, projectID string, res quota.Resource) (map[string]int64, error) {
	var total int64
	errSum := tx.WithContext(ctx).Model(&models.Backup{}).
		Where("project_id = ? AND deleted = ?", projectID, false).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	if errSum != nil {
		return nil, errSum
	}
	return map[string]int64{res.Name: total}, nil
}
