package tokens

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/database"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

func testService(t *testing.T) (*Service, *gorm.DB, *audit.Recorder) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	db.Exec("PRAGMA busy_timeout = 5000")
	require.NoError(t, database.Migrate(db))

	rec := audit.NewRecorder(db, zap.NewNop(), 64, 2, time.Millisecond)
	t.Cleanup(rec.Close)
	return NewService(db, rec, time.Hour), db, rec
}

func seedStudent(t *testing.T, db *gorm.DB) uint {
	t.Helper()
	s := models.Student{Name: "João", TenantID: 1}
	require.NoError(t, db.Create(&s).Error)
	return s.ID
}

func TestIssueTTLBoundaries(t *testing.T) {
	svc, db, _ := testService(t)
	studentID := seedStudent(t, db)

	_, err := svc.Issue(studentID, 1, 0)
	require.Equal(t, peierr.KindInvalidTTL, peierr.KindOf(err))

	_, err = svc.Issue(studentID, 1, -time.Minute)
	require.Equal(t, peierr.KindInvalidTTL, peierr.KindOf(err))

	issued, err := svc.Issue(studentID, 1, time.Hour) // exactly the maximum
	require.NoError(t, err)
	require.NotEmpty(t, issued.Secret)
	require.Equal(t, studentID, issued.Token.StudentID)

	_, err = svc.Issue(studentID, 1, time.Hour+time.Second)
	require.Equal(t, peierr.KindInvalidTTL, peierr.KindOf(err))
}

func TestIssueUnknownStudent(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.Issue(999, 1, time.Minute)
	require.Equal(t, peierr.KindNotFound, peierr.KindOf(err))
}

func TestIssueStoresOnlyHash(t *testing.T) {
	svc, db, _ := testService(t)
	studentID := seedStudent(t, db)

	issued, err := svc.Issue(studentID, 1, time.Minute)
	require.NoError(t, err)

	var stored models.AccessToken
	require.NoError(t, db.First(&stored, "id = ?", issued.Token.ID).Error)
	require.NotEqual(t, issued.Secret, stored.TokenHash)
	require.Equal(t, hashSecret(issued.Secret), stored.TokenHash)
}

// Scenario from the family flow: a 60 second token works at t+59s and is
// expired at t+61s, with no sweeper involved.
func TestValidateAbsoluteExpiry(t *testing.T) {
	svc, db, _ := testService(t)
	studentID := seedStudent(t, db)

	issuedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	issued, err := svc.Issue(studentID, 1, 60*time.Second)
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(59 * time.Second) }
	tok, err := svc.Validate(issued.Secret)
	require.NoError(t, err)
	require.Equal(t, studentID, tok.StudentID)
	require.Zero(t, tok.AccessCount) // validation alone is not a use

	require.NoError(t, svc.RecordUse(tok))
	require.Equal(t, 1, tok.AccessCount)
	require.NotNil(t, tok.LastAccessedAt)

	svc.now = func() time.Time { return issuedAt.Add(61 * time.Second) }
	_, err = svc.Validate(issued.Secret)
	require.Equal(t, peierr.KindExpiredToken, peierr.KindOf(err))

	// expiry is absolute: the earlier use did not slide it
	svc.now = func() time.Time { return issuedAt.Add(60 * time.Second) }
	_, err = svc.Validate(issued.Secret)
	require.Equal(t, peierr.KindExpiredToken, peierr.KindOf(err))
}

// Counters only move through RecordUse: a Validate that never reaches an
// allowed read (e.g. the token was presented against the wrong student's
// record) must not count as a use.
func TestValidateLeavesUsageUntouched(t *testing.T) {
	svc, db, _ := testService(t)
	studentID := seedStudent(t, db)

	issued, err := svc.Issue(studentID, 1, time.Minute)
	require.NoError(t, err)

	_, err = svc.Validate(issued.Secret)
	require.NoError(t, err)

	var stored models.AccessToken
	require.NoError(t, db.First(&stored, "id = ?", issued.Token.ID).Error)
	require.Zero(t, stored.AccessCount)
	require.Nil(t, stored.LastAccessedAt)
}

func TestValidateUnknownSecret(t *testing.T) {
	svc, _, _ := testService(t)
	_, err := svc.Validate("no-such-token")
	require.Equal(t, peierr.KindNotFound, peierr.KindOf(err))
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, db, _ := testService(t)
	studentID := seedStudent(t, db)

	issued, err := svc.Issue(studentID, 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(issued.Token.ID, 2))
	require.NoError(t, svc.Revoke(issued.Token.ID, 2)) // second revoke is a no-op success

	_, err = svc.Validate(issued.Secret)
	require.Equal(t, peierr.KindRevokedToken, peierr.KindOf(err))
	_, err = svc.Validate(issued.Secret)
	require.Equal(t, peierr.KindRevokedToken, peierr.KindOf(err))

	require.Equal(t, peierr.KindNotFound, peierr.KindOf(svc.Revoke("missing", 2)))
}

func TestRevokedWinsOverExpired(t *testing.T) {
	svc, db, _ := testService(t)
	studentID := seedStudent(t, db)

	issuedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }
	issued, err := svc.Issue(studentID, 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(issued.Token.ID, 2))
	svc.now = func() time.Time { return issuedAt.Add(time.Hour) }
	_, err = svc.Validate(issued.Secret)
	require.Equal(t, peierr.KindRevokedToken, peierr.KindOf(err))
}

func TestValidationAttemptsAreAudited(t *testing.T) {
	svc, db, rec := testService(t)
	studentID := seedStudent(t, db)

	issued, err := svc.Issue(studentID, 1, time.Minute)
	require.NoError(t, err)
	tok, err := svc.Validate(issued.Secret)
	require.NoError(t, err)
	require.NoError(t, svc.RecordUse(tok))
	_, err = svc.Validate("bogus")
	require.Equal(t, peierr.KindNotFound, peierr.KindOf(err))
	rec.Flush()

	rows, _, err := rec.Query(audit.Filter{EntityType: "access_token"})
	require.NoError(t, err)

	var issueN, okN, deniedN int
	for _, e := range rows {
		switch {
		case e.Action == models.ActionTokenIssue:
			issueN++
		case e.Action == models.ActionTokenValidate && e.Outcome == models.OutcomeSuccess:
			okN++
		case e.Action == models.ActionTokenValidate && e.Outcome == models.OutcomeDenied:
			deniedN++
		}
	}
	require.Equal(t, 1, issueN)
	require.Equal(t, 1, okN)
	require.Equal(t, 1, deniedN)
}
