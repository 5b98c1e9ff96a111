package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

// Service issues, validates and revokes family access tokens. The token
// secret is random and only its SHA-256 lands in the database; the plaintext
// exists exactly once, in the Issue response. Expiry is absolute — a token
// issued for 60s dies at issued+60s no matter how often it is used.
type Service struct {
	db     *gorm.DB
	audit  *audit.Recorder
	maxTTL time.Duration
	now    func() time.Time // injectable for tests
}

// Issued carries the one-time plaintext secret next to the stored record.
type Issued struct {
	Token  models.AccessToken `json:"token"`
	Secret string             `json:"secret"`
}

func NewService(db *gorm.DB, rec *audit.Recorder, maxTTL time.Duration) *Service {
	return &Service{db: db, audit: rec, maxTTL: maxTTL, now: time.Now}
}

// Issue creates a token for one student. The caller must already have passed
// the access engine (admin, education secretary, or assigned coordinator).
// ttl must be positive and at most the configured maximum.
func (s *Service) Issue(studentID, issuerID uint, ttl time.Duration) (*Issued, error) {
	if ttl <= 0 {
		return nil, peierr.InvalidTTL("ttl must be positive")
	}
	if ttl > s.maxTTL {
		return nil, peierr.InvalidTTL("ttl exceeds configured maximum")
	}

	var n int64
	if err := s.db.Model(&models.Student{}).Where("id = ?", studentID).Count(&n).Error; err != nil {
		return nil, peierr.Persistence("check student", err)
	}
	if n == 0 {
		return nil, peierr.NotFound("student")
	}

	secret, err := newSecret()
	if err != nil {
		return nil, peierr.Persistence("generate token secret", err)
	}

	issuedAt := s.now().UTC()
	t := models.AccessToken{
		ID:        uuid.NewString(),
		TokenHash: hashSecret(secret),
		StudentID: studentID,
		IssuedBy:  issuerID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}
	if err := s.db.Create(&t).Error; err != nil {
		return nil, peierr.Persistence("insert token", err)
	}

	s.audit.Record(models.AuditEntry{
		ActorID:    issuerID,
		Action:     models.ActionTokenIssue,
		EntityType: "access_token",
		EntityID:   t.StudentID,
		Outcome:    models.OutcomeSuccess,
		Detail:     t.ID,
		OccurredAt: issuedAt,
	})
	return &Issued{Token: t, Secret: secret}, nil
}

// Validate checks a presented secret without consuming a use. Deny reasons
// are NotFound, Revoked and Expired; revocation wins over expiry for a token
// that is both. Denied attempts are audited here; a pass is audited by
// RecordUse once the access engine has allowed the read.
func (s *Service) Validate(secret string) (*models.AccessToken, error) {
	attemptAt := s.now().UTC()

	var t models.AccessToken
	err := s.db.Where("token_hash = ?", hashSecret(secret)).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordAttempt(0, 0, models.OutcomeDenied, "unknown token", attemptAt)
			return nil, peierr.NotFound("access token")
		}
		return nil, peierr.Persistence("load token", err)
	}

	if t.Revoked {
		s.recordAttempt(0, t.StudentID, models.OutcomeDenied, "revoked", attemptAt)
		return nil, peierr.RevokedToken()
	}
	if !attemptAt.Before(t.ExpiresAt) {
		s.recordAttempt(0, t.StudentID, models.OutcomeDenied, "expired", attemptAt)
		return nil, peierr.ExpiredToken()
	}

	return &t, nil
}

// RecordUse bumps the usage counters and audits the successful access.
// Callers invoke it only after the access engine allowed the read, so a
// valid token presented against the wrong student never counts as a use.
func (s *Service) RecordUse(t *models.AccessToken) error {
	at := s.now().UTC()
	if err := s.db.Model(t).Updates(map[string]any{
		"access_count":     gorm.Expr("access_count + 1"),
		"last_accessed_at": at,
	}).Error; err != nil {
		return peierr.Persistence("update token usage", err)
	}
	t.AccessCount++
	t.LastAccessedAt = &at
	s.recordAttempt(0, t.StudentID, models.OutcomeSuccess, t.ID, at)
	return nil
}

// Revoke is idempotent: revoking an already-revoked or expired token is a
// no-op success. Only revoking an unknown token errors.
func (s *Service) Revoke(tokenID string, revokerID uint) error {
	var t models.AccessToken
	if err := s.db.First(&t, "id = ?", tokenID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return peierr.NotFound("access token")
		}
		return peierr.Persistence("load token", err)
	}
	if t.Revoked {
		return nil
	}

	if err := s.db.Model(&t).Update("revoked", true).Error; err != nil {
		return peierr.Persistence("revoke token", err)
	}
	s.audit.Record(models.AuditEntry{
		ActorID:    revokerID,
		Action:     models.ActionTokenRevoke,
		EntityType: "access_token",
		EntityID:   t.StudentID,
		Outcome:    models.OutcomeSuccess,
		Detail:     t.ID,
		OccurredAt: s.now().UTC(),
	})
	return nil
}

func (s *Service) recordAttempt(actorID, studentID uint, outcome, detail string, at time.Time) {
	s.audit.Record(models.AuditEntry{
		ActorID:    actorID,
		Action:     models.ActionTokenValidate,
		EntityType: "access_token",
		EntityID:   studentID,
		Outcome:    outcome,
		Detail:     detail,
		OccurredAt: at,
	})
}

func newSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
