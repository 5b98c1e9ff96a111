package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

var errLockTimeout = errors.New("student write lock timeout")

// primary entity writes get a small retry budget before surfacing 5xx
const primaryRetries = 2

// Store owns the PEIVersion lifecycle. All writes for one student are
// serialized by a per-student lock so that at no instant zero or two versions
// are active. Authorization happens before entry — callers consult the access
// engine first; the store only enforces record invariants.
type Store struct {
	db          *gorm.DB
	audit       *audit.Recorder
	locks       *studentLocks
	lockTimeout time.Duration
}

func New(db *gorm.DB, rec *audit.Recorder, lockTimeout time.Duration) *Store {
	return &Store{
		db:          db,
		audit:       rec,
		locks:       newStudentLocks(),
		lockTimeout: lockTimeout,
	}
}

// CreateVersion inserts the next version for a student as active and retires
// the prior active version in the same transaction. An identical payload
// still produces a new version: every submit is a provenance event.
func (s *Store) CreateVersion(ctx context.Context, studentID, authorID uint, payload datatypes.JSON) (*models.PEIVersion, error) {
	release, err := s.locks.acquire(ctx, studentID, s.lockTimeout)
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			return nil, peierr.Conflict("student is being updated by another request, retry")
		}
		return nil, err
	}
	defer release()

	occurred := time.Now().UTC()
	var created models.PEIVersion
	var prior *models.PEIVersion

	err = s.withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := studentExists(tx, studentID); err != nil {
				return err
			}

			var active models.PEIVersion
			findActive := tx.Where("student_id = ? AND status = ?", studentID, models.VersionActive).
				First(&active).Error
			switch {
			case findActive == nil:
				prior = &active
			case errors.Is(findActive, gorm.ErrRecordNotFound):
				prior = nil
			default:
				return peierr.Persistence("load active version", findActive)
			}

			next, err := nextVersionNumber(tx, studentID)
			if err != nil {
				return err
			}

			if prior != nil {
				if err := tx.Model(&models.PEIVersion{}).
					Where("id = ? AND status = ?", prior.ID, models.VersionActive).
					Update("status", models.VersionObsolete).Error; err != nil {
					return peierr.Persistence("retire active version", err)
				}
			}

			created = models.PEIVersion{
				StudentID:     studentID,
				VersionNumber: next,
				Status:        models.VersionActive,
				Payload:       payload,
				AuthorID:      authorID,
			}
			if err := tx.Create(&created).Error; err != nil {
				return peierr.Persistence("insert version", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordChange(authorID, models.ActionVersionCreate, created.ID, changedFields(prior, payload), occurred)
	return &created, nil
}

// SaveDraft stores an editable draft. Drafts carry version number 0 and do
// not touch the active chain, so no per-student lock is needed here.
func (s *Store) SaveDraft(ctx context.Context, studentID, authorID uint, payload datatypes.JSON) (*models.PEIVersion, error) {
	if err := studentExists(s.db, studentID); err != nil {
		return nil, err
	}
	draft := models.PEIVersion{
		StudentID: studentID,
		Status:    models.VersionDraft,
		Payload:   payload,
		AuthorID:  authorID,
	}
	if err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Create(&draft).Error
	}); err != nil {
		return nil, peierr.Persistence("insert draft", err)
	}
	s.recordChange(authorID, models.ActionDraftSave, draft.ID, nil, time.Now().UTC())
	return &draft, nil
}

// SubmitDraft promotes a draft to the active version: it receives the next
// version number and the prior active version is retired, all inside the
// per-student transaction.
func (s *Store) SubmitDraft(ctx context.Context, draftID, submitterID uint) (*models.PEIVersion, error) {
	var draft models.PEIVersion
	if err := s.db.First(&draft, "id = ?", draftID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, peierr.NotFound("draft")
		}
		return nil, peierr.Persistence("load draft", err)
	}
	if draft.Status != models.VersionDraft {
		return nil, peierr.Validation("version is not a draft")
	}

	release, err := s.locks.acquire(ctx, draft.StudentID, s.lockTimeout)
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			return nil, peierr.Conflict("student is being updated by another request, retry")
		}
		return nil, err
	}
	defer release()

	occurred := time.Now().UTC()
	var prior *models.PEIVersion

	err = s.withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// re-read under the lock, the draft may have raced another submit
			if err := tx.First(&draft, "id = ? AND status = ?", draftID, models.VersionDraft).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return peierr.Conflict("draft already submitted")
				}
				return peierr.Persistence("load draft", err)
			}

			var active models.PEIVersion
			findActive := tx.Where("student_id = ? AND status = ?", draft.StudentID, models.VersionActive).
				First(&active).Error
			switch {
			case findActive == nil:
				prior = &active
			case errors.Is(findActive, gorm.ErrRecordNotFound):
				prior = nil
			default:
				return peierr.Persistence("load active version", findActive)
			}

			next, err := nextVersionNumber(tx, draft.StudentID)
			if err != nil {
				return err
			}

			if prior != nil {
				if err := tx.Model(&models.PEIVersion{}).
					Where("id = ? AND status = ?", prior.ID, models.VersionActive).
					Update("status", models.VersionObsolete).Error; err != nil {
					return peierr.Persistence("retire active version", err)
				}
			}
			if err := tx.Model(&draft).Updates(map[string]any{
				"status":         models.VersionActive,
				"version_number": next,
			}).Error; err != nil {
				return peierr.Persistence("promote draft", err)
			}
			draft.Status = models.VersionActive
			draft.VersionNumber = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.recordChange(submitterID, models.ActionVersionCreate, draft.ID, changedFields(prior, draft.Payload), occurred)
	return &draft, nil
}

// ApproveVersion stamps approval metadata on the active version. Approving an
// already-approved version is a no-op success.
func (s *Store) ApproveVersion(ctx context.Context, studentID uint, versionNumber int, approverID uint) (*models.PEIVersion, error) {
	release, err := s.locks.acquire(ctx, studentID, s.lockTimeout)
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			return nil, peierr.Conflict("student is being updated by another request, retry")
		}
		return nil, err
	}
	defer release()

	var v models.PEIVersion
	if err := s.db.Where("student_id = ? AND version_number = ?", studentID, versionNumber).
		First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, peierr.NotFound("version")
		}
		return nil, peierr.Persistence("load version", err)
	}
	if v.Status != models.VersionActive {
		return nil, peierr.Validation("only the active version can be approved")
	}
	if v.ApproverID != nil {
		return &v, nil
	}

	now := time.Now().UTC()
	if err := s.withRetry(func() error {
		return s.db.WithContext(ctx).Model(&v).Updates(map[string]any{
			"approver_id": approverID,
			"approved_at": now,
		}).Error
	}); err != nil {
		return nil, peierr.Persistence("approve version", err)
	}
	v.ApproverID = &approverID
	v.ApprovedAt = &now

	s.recordChange(approverID, models.ActionVersionApprove, v.ID, []string{"approver_id", "approved_at"}, now)
	return &v, nil
}

// GetActiveVersion returns the single active version for a student. Reads are
// not blocked by the per-student write lock.
func (s *Store) GetActiveVersion(studentID uint) (*models.PEIVersion, error) {
	if err := studentExists(s.db, studentID); err != nil {
		return nil, err
	}
	var v models.PEIVersion
	if err := s.db.Where("student_id = ? AND status = ?", studentID, models.VersionActive).
		First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, peierr.NotFound("active version")
		}
		return nil, peierr.Persistence("load active version", err)
	}
	return &v, nil
}

// ListVersions returns submitted versions ascending by version number.
// Offset pagination keeps the sequence finite and restartable; drafts are
// excluded (they have no number yet).
func (s *Store) ListVersions(studentID uint, page, size int) ([]models.PEIVersion, int64, error) {
	if err := studentExists(s.db, studentID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	tx := s.db.Model(&models.PEIVersion{}).
		Where("student_id = ? AND status <> ?", studentID, models.VersionDraft)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, peierr.Persistence("count versions", err)
	}
	var rows []models.PEIVersion
	if err := tx.Order("version_number ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return nil, 0, peierr.Persistence("list versions", err)
	}
	return rows, total, nil
}

// CompareVersions diffs two versions of a student field by field. Pure read,
// no side effects.
func (s *Store) CompareVersions(studentID uint, v1, v2 int) (Diff, error) {
	a, err := s.versionByNumber(studentID, v1)
	if err != nil {
		return Diff{}, err
	}
	b, err := s.versionByNumber(studentID, v2)
	if err != nil {
		return Diff{}, err
	}
	return diffPayloads(a.Payload, b.Payload), nil
}

func (s *Store) versionByNumber(studentID uint, n int) (*models.PEIVersion, error) {
	var v models.PEIVersion
	if err := s.db.Where("student_id = ? AND version_number = ?", studentID, n).
		First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, peierr.NotFound("version")
		}
		return nil, peierr.Persistence("load version", err)
	}
	return &v, nil
}

func nextVersionNumber(tx *gorm.DB, studentID uint) (int, error) {
	var max int
	err := tx.Model(&models.PEIVersion{}).
		Where("student_id = ?", studentID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, peierr.Persistence("next version number", err)
	}
	return max + 1, nil
}

func studentExists(tx *gorm.DB, studentID uint) error {
	var n int64
	if err := tx.Model(&models.Student{}).Where("id = ?", studentID).Count(&n).Error; err != nil {
		return peierr.Persistence("check student", err)
	}
	if n == 0 {
		return peierr.NotFound("student")
	}
	return nil
}

// withRetry re-runs fn on transient persistence failures. Domain errors pass
// through immediately; they are never retried.
func (s *Store) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt <= primaryRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var pe *peierr.Error
		if errors.As(err, &pe) && pe.Kind != peierr.KindPersistence {
			return err
		}
	}
	return err
}

func (s *Store) recordChange(actorID uint, action string, versionID uint, fields []string, occurred time.Time) {
	s.audit.Record(models.AuditEntry{
		ActorID:       actorID,
		Action:        action,
		EntityType:    "pei_version",
		EntityID:      versionID,
		ChangedFields: strings.Join(fields, ","),
		Outcome:       models.OutcomeSuccess,
		OccurredAt:    occurred,
	})
}

func changedFields(prior *models.PEIVersion, payload datatypes.JSON) []string {
	var old datatypes.JSON
	if prior != nil {
		old = prior.Payload
	}
	return diffPayloads(old, payload).All()
}
