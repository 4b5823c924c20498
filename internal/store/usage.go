package store

import (
	"context"

	"github.com/lijhnihaoa/blockquota/internal/models"
	"github.com/lijhnihaoa/blockquota/internal/quota"
)

// Usages returns the consumption counters recorded for a project. A nil
// or empty resources slice returns every row; resources without a row
// are simply absent from the result. A never-synced row reports in_use
// of zero rather than its internal sentinel.
func (s *Store) Usages(ctx context.Context, projectID string, resources []string) (map[string]quota.Usage, error) {
	q := s.conn.WithContext(ctx).Where("project_id = ?", projectID)
	if len(resources) > 0 {
		q = q.Where("resource IN ?", resources)
	}
	var rows []models.QuotaUsage
	if errFind := q.Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	out := make(map[string]quota.Usage, len(rows))
	for _, row := range rows {
		inUse := row.InUse
		if inUse < 0 {
			inUse = 0
		}
		out[row.Resource] = quota.Usage{InUse: inUse, Reserved: row.Reserved}
	}
	return out, nil
}
