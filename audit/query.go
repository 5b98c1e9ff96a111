package audit

import (
	"time"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

// Filter narrows a Query. Zero values mean "any".
type Filter struct {
	EntityType string
	EntityID   uint
	ActorID    uint
	From       time.Time
	To         time.Time
	Page       int
	Size       int
}

// Query returns matching entries ordered by OccurredAt ascending. Offset
// pagination keeps the sequence finite and restartable. Entries are read
// as-is: the log is append-only and nothing rewrites or reorders it.
func (r *Recorder) Query(f Filter) ([]models.AuditEntry, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size < 1 || f.Size > 100 {
		f.Size = 50
	}

	tx := r.db.Model(&models.AuditEntry{})
	if f.EntityType != "" {
		tx = tx.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		tx = tx.Where("entity_id = ?", f.EntityID)
	}
	if f.ActorID != 0 {
		tx = tx.Where("actor_id = ?", f.ActorID)
	}
	if !f.From.IsZero() {
		tx = tx.Where("occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		tx = tx.Where("occurred_at <= ?", f.To)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, peierr.Persistence("count audit entries", err)
	}

	var rows []models.AuditEntry
	if err := tx.Order("occurred_at ASC, id ASC").
		Offset((f.Page - 1) * f.Size).Limit(f.Size).
		Find(&rows).Error; err != nil {
		return nil, 0, peierr.Persistence("query audit entries", err)
	}
	return rows, total, nil
}
