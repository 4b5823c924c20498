package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lijhnihaoa/blockquota/internal/models"
	"github.com/lijhnihaoa/blockquota/internal/quota"
)

// Reserve runs the reservation protocol in one transaction: lock the
// project's usage rows, resync the stale ones, deny if any positive
// delta would overshoot its limit, otherwise record one reservation per
// delta and bump the reserved counters. A denial leaves no trace.
func (s *Store) Reserve(ctx context.Context, req quota.ReserveRequest) ([]string, error) {
	var ids []string
	errTx := s.withRetry(ctx, func(tx *gorm.DB) error {
		ids = ids[:0]
		now := time.Now().UTC()

		names := make([]string, len(req.Deltas))
		for i, delta := range req.Deltas {
			names[i] = delta.Resource
		}

		var rows []models.QuotaUsage
		errFind := lockForUpdate(tx).
			Where("project_id = ? AND resource IN ?", req.ProjectID, names).
			Find(&rows).Error
		if errFind != nil {
			return errFind
		}
		usages := make(map[string]*models.QuotaUsage, len(rows))
		for i := range rows {
			usages[rows[i].Resource] = &rows[i]
		}

		refreshed := make(map[string]bool, len(req.Deltas))
		for _, delta := range req.Deltas {
			res, ok := req.Resources[delta.Resource]
			if !ok {
				return &quota.QuotaResourceUnknownError{Resources: []string{delta.Resource}}
			}

			row, exists := usages[delta.Resource]
			refresh := false
			switch {
			case !exists:
				refresh = true
			case row.InUse < 0:
				// Row was created as a dirty placeholder; recount and
				// restart its countdown under the current setting.
				refresh = true
				row.UntilRefresh = countdown(req.UntilRefresh)
			case row.UntilRefresh != nil:
				if req.UntilRefresh <= 0 {
					row.UntilRefresh = nil
				} else {
					*row.UntilRefresh--
					if *row.UntilRefresh <= 0 {
						refresh = true
					}
				}
			case req.UntilRefresh > 0:
				// Countdowns were just enabled; stamp without recounting.
				row.UntilRefresh = countdown(req.UntilRefresh)
			case req.MaxAge > 0 && now.Sub(row.UpdatedAt) >= req.MaxAge:
				refresh = true
			}

			if !refresh || refreshed[delta.Resource] {
				continue
			}
			if errSync := s.applySync(ctx, tx, req, res, usages, refreshed, now); errSync != nil {
				return errSync
			}
		}

		// A sync provider normally reports every resource it covers;
		// back any delta still without a row with an empty one so the
		// reservation has something to reference.
		for _, delta := range req.Deltas {
			if _, ok := usages[delta.Resource]; ok {
				continue
			}
			row := &models.QuotaUsage{
				ProjectID:    req.ProjectID,
				Resource:     delta.Resource,
				InUse:        0,
				Reserved:     0,
				UntilRefresh: countdown(req.UntilRefresh),
				UpdatedAt:    now,
			}
			if errCreate := tx.Create(row).Error; errCreate != nil {
				return errCreate
			}
			usages[delta.Resource] = row
		}

		var overs []string
		for _, delta := range req.Deltas {
			if delta.Amount < 0 {
				continue
			}
			limit, ok := req.Quotas[delta.Resource]
			if !ok || limit < 0 {
				continue
			}
			row := usages[delta.Resource]
			if limit < delta.Amount+row.InUse+row.Reserved {
				overs = append(overs, delta.Resource)
			}
		}
		if len(overs) > 0 {
			sort.Strings(overs)
			errUsages := make(map[string]quota.Usage, len(req.Deltas))
			for _, delta := range req.Deltas {
				row := usages[delta.Resource]
				errUsages[delta.Resource] = quota.Usage{InUse: row.InUse, Reserved: row.Reserved}
			}
			return &quota.OverQuotaError{Overs: overs, Quotas: req.Quotas, Usages: errUsages}
		}

		for _, delta := range req.Deltas {
			row := usages[delta.Resource]
			reservation := models.Reservation{
				UUID:      uuid.NewString(),
				UsageID:   row.ID,
				ProjectID: req.ProjectID,
				Resource:  delta.Resource,
				Delta:     delta.Amount,
				Expire:    req.Expire,
			}
			if errCreate := tx.Create(&reservation).Error; errCreate != nil {
				return errCreate
			}
			row.Reserved += delta.Amount
			ids = append(ids, reservation.UUID)
		}

		return saveUsageRows(tx, usages)
	})
	if errTx != nil {
		return nil, errTx
	}
	return ids, nil
}

// applySync recounts usage through the resource's sync provider and
// folds every returned key into the locked row set, creating rows for
// resources seen for the first time.
func (s *Store) applySync(ctx context.Context, tx *gorm.DB, req quota.ReserveRequest, res quota.Resource, usages map[string]*models.QuotaUsage, refreshed map[string]bool, now time.Time) error {
	fn, errSync := s.sync(res.SyncName)
	if errSync != nil {
		return errSync
	}
	updates, errRun := fn(ctx, tx, req.ProjectID, res)
	if errRun != nil {
		return errRun
	}
	for name, inUse := range updates {
		row, ok := usages[name]
		if !ok {
			row = &models.QuotaUsage{
				ProjectID:    req.ProjectID,
				Resource:     name,
				InUse:        inUse,
				Reserved:     0,
				UntilRefresh: countdown(req.UntilRefresh),
				UpdatedAt:    now,
			}
			if errCreate := tx.Create(row).Error; errCreate != nil {
				return errCreate
			}
			usages[name] = row
		} else {
			row.InUse = inUse
			row.UntilRefresh = countdown(req.UntilRefresh)
			row.UpdatedAt = now
		}
		refreshed[name] = true
	}
	return nil
}

// saveUsageRows writes the in-memory counters back. Rows created in
// this transaction are rewritten too, which is harmless.
func saveUsageRows(tx *gorm.DB, usages map[string]*models.QuotaUsage) error {
	for _, row := range usages {
		errUpdate := tx.Model(&models.QuotaUsage{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"in_use":        row.InUse,
				"reserved":      row.Reserved,
				"until_refresh": row.UntilRefresh,
				"updated_at":    row.UpdatedAt,
			}).Error
		if errUpdate != nil {
			return errUpdate
		}
	}
	return nil
}

func countdown(n int) *int {
	if n <= 0 {
		return nil
	}
	v := n
	return &v
}
