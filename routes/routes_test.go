package routes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/config"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/database"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/store"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/tokens"
)

const testSecret = "test-secret"

type app struct {
	e   *echo.Echo
	db  *gorm.DB
	dir *access.Directory
	rec *audit.Recorder
}

func newApp(t *testing.T) *app {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	db.Exec("PRAGMA busy_timeout = 5000")
	require.NoError(t, database.Migrate(db))

	rec := audit.NewRecorder(db, zap.NewNop(), 256, 2, time.Millisecond)
	t.Cleanup(rec.Close)

	cfg := &config.Config{
		JWTSecret:   testSecret,
		MaxTokenTTL: time.Hour,
		LockTimeout: 2 * time.Second,
	}
	dir := access.NewDirectory(db)

	e := echo.New()
	Register(e, Deps{
		DB:     db,
		Config: cfg,
		Store:  store.New(db, rec, cfg.LockTimeout),
		Engine: access.NewEngine(),
		Dir:    dir,
		Tokens: tokens.NewService(db, rec, cfg.MaxTokenTTL),
		Audit:  rec,
	})
	return &app{e: e, db: db, dir: dir, rec: rec}
}

func (a *app) principal(t *testing.T, role string, tenantID uint) models.Principal {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	p := models.Principal{
		Email:        fmt.Sprintf("%s@pei.test", uuid.NewString()[:8]),
		PasswordHash: string(hash),
		FullName:     "Test " + role,
		TenantID:     tenantID,
		Role:         role,
		Status:       models.PrincipalActive,
	}
	require.NoError(t, a.db.Create(&p).Error)
	return p
}

func (a *app) jwtFor(t *testing.T, p models.Principal) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  p.ID,
		"role": p.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (a *app) request(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.e.ServeHTTP(w, req)
	return w
}

// seedWorld creates network → school → class, one student in the class, and a
// coordinator assigned to the student.
func (a *app) seedWorld(t *testing.T) (student models.Student, class *models.Tenant, coordinator models.Principal) {
	t.Helper()
	network, err := a.dir.CreateTenant(nil, models.TenantNetwork, "Rede")
	require.NoError(t, err)
	school, err := a.dir.CreateTenant(&network.ID, models.TenantSchool, "Escola")
	require.NoError(t, err)
	class, err = a.dir.CreateTenant(&school.ID, models.TenantClass, "Turma 3B")
	require.NoError(t, err)

	student = models.Student{Name: "Maria", TenantID: class.ID}
	require.NoError(t, a.db.Create(&student).Error)

	coordinator = a.principal(t, models.RoleCoordinator, class.ID)
	require.NoError(t, a.db.Create(&models.StaffAssignment{
		StudentID: student.ID, PrincipalID: coordinator.ID,
	}).Error)
	return student, class, coordinator
}

func TestCreateAndListVersionsOverHTTP(t *testing.T) {
	a := newApp(t)
	student, _, coordinator := a.seedWorld(t)
	token := a.jwtFor(t, coordinator)

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		token, `{"goals":"reading"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		token, `{"goals":"writing"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.request(http.MethodGet, fmt.Sprintf("/students/%d/pei-versions", student.ID), token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data  []models.PEIVersion `json:"data"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.EqualValues(t, 2, list.Total)
	require.Equal(t, models.VersionObsolete, list.Data[0].Status)
	require.Equal(t, models.VersionActive, list.Data[1].Status)
}

// An unassigned teacher gets 403 and the denial lands in the audit trail.
func TestUnassignedTeacherIsDeniedAndAudited(t *testing.T) {
	a := newApp(t)
	student, class, _ := a.seedWorld(t)
	teacher := a.principal(t, models.RoleTeacher, class.ID) // same class, no assignment

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		a.jwtFor(t, teacher), `{"goals":"x"}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	a.rec.Flush()
	rows, _, err := a.rec.Query(audit.Filter{ActorID: teacher.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, models.ActionVersionCreate, rows[0].Action)
	require.Equal(t, models.OutcomeDenied, rows[0].Outcome)

	// nothing was written
	var n int64
	require.NoError(t, a.db.Model(&models.PEIVersion{}).Count(&n).Error)
	require.Zero(t, n)
}

// Admin mutations run through the same engine and the same decision logging:
// an admin bound to another network is denied and the denial is audited.
func TestAdminOutsideSubtreeIsDeniedAndAudited(t *testing.T) {
	a := newApp(t)
	_, class, _ := a.seedWorld(t)
	otherNet, err := a.dir.CreateTenant(nil, models.TenantNetwork, "Outra Rede")
	require.NoError(t, err)
	admin := a.principal(t, models.RoleAdmin, otherNet.ID)

	body := fmt.Sprintf(`{"name":"Pedro","tenant_id":%d}`, class.ID)
	w := a.request(http.MethodPost, "/admin/students", a.jwtFor(t, admin), body)
	require.Equal(t, http.StatusForbidden, w.Code)

	a.rec.Flush()
	rows, _, err := a.rec.Query(audit.Filter{ActorID: admin.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, models.ActionStudentCreate, rows[0].Action)
	require.Equal(t, models.OutcomeDenied, rows[0].Outcome)

	var n int64
	require.NoError(t, a.db.Model(&models.Student{}).Where("name = ?", "Pedro").Count(&n).Error)
	require.Zero(t, n)
}

func TestFamilyTokenFlow(t *testing.T) {
	a := newApp(t)
	student, _, coordinator := a.seedWorld(t)
	coordToken := a.jwtFor(t, coordinator)

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		coordToken, `{"goals":"reading"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// coordinator issues a family token
	w = a.request(http.MethodPost, fmt.Sprintf("/students/%d/family-tokens", student.ID),
		coordToken, `{"ttl_seconds":600}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued struct {
		Token  models.AccessToken `json:"token"`
		Secret string             `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Secret)

	// the family reads the active version with no session at all
	w = a.request(http.MethodGet,
		fmt.Sprintf("/students/%d/pei-versions/active?access_token=%s", student.ID, issued.Secret), "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var v models.PEIVersion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	require.Equal(t, models.VersionActive, v.Status)

	// the successful read counted as a use
	var stored models.AccessToken
	require.NoError(t, a.db.First(&stored, "id = ?", issued.Token.ID).Error)
	require.Equal(t, 1, stored.AccessCount)

	// the token is bound to its student
	other := models.Student{Name: "Outro", TenantID: student.TenantID}
	require.NoError(t, a.db.Create(&other).Error)
	w = a.request(http.MethodGet,
		fmt.Sprintf("/students/%d/pei-versions/active?access_token=%s", other.ID, issued.Secret), "", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// the denied read did not
	require.NoError(t, a.db.First(&stored, "id = ?", issued.Token.ID).Error)
	require.Equal(t, 1, stored.AccessCount)

	// revoke, then the read is denied
	w = a.request(http.MethodDelete, "/family-tokens/"+issued.Token.ID, coordToken, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = a.request(http.MethodGet,
		fmt.Sprintf("/students/%d/pei-versions/active?access_token=%s", student.ID, issued.Secret), "", "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestTeacherCannotIssueTokens(t *testing.T) {
	a := newApp(t)
	student, class, _ := a.seedWorld(t)
	teacher := a.principal(t, models.RoleTeacher, class.ID)
	require.NoError(t, a.db.Create(&models.StaffAssignment{
		StudentID: student.ID, PrincipalID: teacher.ID,
	}).Error)

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/family-tokens", student.ID),
		a.jwtFor(t, teacher), `{"ttl_seconds":60}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuditEndpointIsRoleGated(t *testing.T) {
	a := newApp(t)
	student, _, coordinator := a.seedWorld(t)

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		a.jwtFor(t, coordinator), `{"goals":"x"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	a.rec.Flush()

	// coordinators cannot read the audit log
	w = a.request(http.MethodGet, "/audit", a.jwtFor(t, coordinator), "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// an admin bound to the network can
	var network models.Tenant
	require.NoError(t, a.db.Where("parent_id IS NULL").First(&network).Error)
	admin := a.principal(t, models.RoleAdmin, network.ID)
	w = a.request(http.MethodGet, "/audit?entity=pei_version", a.jwtFor(t, admin), "")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Data []models.AuditEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.Data)
}

func TestSuspendedPrincipalCannotAct(t *testing.T) {
	a := newApp(t)
	student, _, coordinator := a.seedWorld(t)
	token := a.jwtFor(t, coordinator)

	require.NoError(t, a.db.Model(&coordinator).Update("status", models.PrincipalSuspended).Error)

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		token, `{"goals":"x"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegisterLoginApprovalWorkflow(t *testing.T) {
	a := newApp(t)
	_, class, _ := a.seedWorld(t)

	body := fmt.Sprintf(`{"email":"novo@pei.test","password":"secret123","full_name":"Novo Prof","role":"teacher","tenant_id":%d}`, class.ID)
	w := a.request(http.MethodPost, "/auth/register", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// login is blocked until approval
	login := `{"email":"novo@pei.test","password":"secret123"}`
	w = a.request(http.MethodPost, "/auth/login", "", login)
	require.Equal(t, http.StatusForbidden, w.Code)

	var p models.Principal
	require.NoError(t, a.db.Where("email = ?", "novo@pei.test").First(&p).Error)

	var network models.Tenant
	require.NoError(t, a.db.Where("parent_id IS NULL").First(&network).Error)
	admin := a.principal(t, models.RoleAdmin, network.ID)
	w = a.request(http.MethodPost, fmt.Sprintf("/admin/principals/%d/approve", p.ID),
		a.jwtFor(t, admin), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.request(http.MethodPost, "/auth/login", "", login)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
}

func TestVersionCompareOverHTTP(t *testing.T) {
	a := newApp(t)
	student, _, coordinator := a.seedWorld(t)
	token := a.jwtFor(t, coordinator)

	w := a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		token, `{"goals":"reading","support":"daily"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	w = a.request(http.MethodPost, fmt.Sprintf("/students/%d/pei-versions", student.ID),
		token, `{"goals":"reading","support":"weekly","therapy":"speech"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.request(http.MethodGet,
		fmt.Sprintf("/students/%d/pei-versions/compare?from=1&to=2", student.ID), token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var diff store.Diff
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &diff))
	require.Equal(t, []string{"therapy"}, diff.Added)
	require.Equal(t, []string{"support"}, diff.Changed)
	require.Empty(t, diff.Removed)
}
