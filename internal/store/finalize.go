package store

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lijhnihaoa/blockquota/internal/models"
)

const expireWorkers = 4

// Commit folds the named reservations into committed usage and deletes
// them. Ids with no matching reservation are logged and skipped, so a
// double commit is harmless.
func (s *Store) Commit(ctx context.Context, projectID string, ids []string) error {
	return s.finalize(ctx, projectID, ids, true)
}

// Rollback releases the named reservations, returning their deltas to
// available capacity without touching committed usage. Unknown ids are
// logged and skipped.
func (s *Store) Rollback(ctx context.Context, projectID string, ids []string) error {
	return s.finalize(ctx, projectID, ids, false)
}

func (s *Store) finalize(ctx context.Context, projectID string, ids []string, commit bool) error {
	if len(ids) == 0 {
		return nil
	}
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		reservations, errLoad := loadReservations(tx, projectID, ids)
		if errLoad != nil {
			return errLoad
		}
		return applyFinalize(tx, reservations, commit)
	})
}

func loadReservations(tx *gorm.DB, projectID string, ids []string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	q := tx.Where("uuid IN ?", ids)
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	if errFind := q.Find(&reservations).Error; errFind != nil {
		return nil, errFind
	}
	if len(reservations) < len(ids) {
		found := make(map[string]bool, len(reservations))
		for _, r := range reservations {
			found[r.UUID] = true
		}
		for _, id := range ids {
			if !found[id] {
				log.Debugf("reservation %s not found, skipping", id)
			}
		}
	}
	return reservations, nil
}

// applyFinalize mutates the usage rows behind a batch of reservations
// and deletes the batch. With commit set the deltas move from reserved
// to in_use; otherwise they are simply released.
func applyFinalize(tx *gorm.DB, reservations []models.Reservation, commit bool) error {
	if len(reservations) == 0 {
		return nil
	}
	usageIDs := make([]uint64, 0, len(reservations))
	seen := make(map[uint64]bool, len(reservations))
	for _, r := range reservations {
		if !seen[r.UsageID] {
			seen[r.UsageID] = true
			usageIDs = append(usageIDs, r.UsageID)
		}
	}
	var rows []models.QuotaUsage
	errFind := lockForUpdate(tx).
		Where("id IN ?", usageIDs).
		Find(&rows).Error
	if errFind != nil {
		return errFind
	}
	usages := make(map[uint64]*models.QuotaUsage, len(rows))
	for i := range rows {
		usages[rows[i].ID] = &rows[i]
	}

	reservationIDs := make([]uint64, 0, len(reservations))
	for _, r := range reservations {
		row, ok := usages[r.UsageID]
		if !ok {
			log.Warnf("usage row %d behind reservation %s is gone, skipping", r.UsageID, r.UUID)
			continue
		}
		if commit {
			row.InUse += r.Delta
		}
		row.Reserved -= r.Delta
		reservationIDs = append(reservationIDs, r.ID)
	}

	for _, row := range usages {
		errUpdate := tx.Model(&models.QuotaUsage{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{"in_use": row.InUse, "reserved": row.Reserved}).Error
		if errUpdate != nil {
			return errUpdate
		}
	}
	if len(reservationIDs) == 0 {
		return nil
	}
	return tx.Where("id IN ?", reservationIDs).Delete(&models.Reservation{}).Error
}

// ExpireReservations rolls back every reservation whose expiration is
// at or before now, one project per transaction, and reports how many
// were released.
func (s *Store) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	var projects []string
	errFind := s.conn.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("expire <= ?", now).
		Distinct().
		Pluck("project_id", &projects).Error
	if errFind != nil {
		return 0, errFind
	}
	if len(projects) == 0 {
		return 0, nil
	}

	var released atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expireWorkers)
	for _, projectID := range projects {
		projectID := projectID
		g.Go(func() error {
			var count int
			errTx := s.withRetry(gctx, func(tx *gorm.DB) error {
				// Re-read inside the transaction; a reservation seen by
				// the scan may have been committed since.
				var expired []models.Reservation
				errLoad := tx.
					Where("project_id = ? AND expire <= ?", projectID, now).
					Find(&expired).Error
				if errLoad != nil {
					return errLoad
				}
				count = len(expired)
				return applyFinalize(tx, expired, false)
			})
			if errTx != nil {
				return errTx
			}
			released.Add(int64(count))
			return nil
		})
	}
	if errWait := g.Wait(); errWait != nil {
		return 0, errWait
	}
	return int(released.Load()), nil
}

// DestroyByProject removes every usage row, open reservation and
// per-project override recorded for a project.
func (s *Store) DestroyByProject(ctx context.Context, projectID string) error {
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		if errDelete := tx.Where("project_id = ?", projectID).Delete(&models.Reservation{}).Error; errDelete != nil {
			return errDelete
		}
		if errDelete := tx.Where("project_id = ?", projectID).Delete(&models.QuotaUsage{}).Error; errDelete != nil {
			return errDelete
		}
		return tx.Where("project_id = ?", projectID).Delete(&models.ProjectQuota{}).Error
	})
}
