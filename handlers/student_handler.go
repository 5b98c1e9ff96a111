package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/middlewares"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

type StudentHandler struct {
	db     *gorm.DB
	engine *access.Engine
	dir    *access.Directory
	audit  *audit.Recorder
}

func NewStudentHandler(db *gorm.DB, engine *access.Engine, dir *access.Directory, rec *audit.Recorder) *StudentHandler {
	return &StudentHandler{db: db, engine: engine, dir: dir, audit: rec}
}

type studentPayload struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD, optional
	TenantID  uint   `json:"tenant_id"`
}

func (p *studentPayload) normalize() {
	p.Name = strings.Join(strings.Fields(p.Name), " ")
	p.BirthDate = strings.TrimSpace(p.BirthDate)
}

func (h *StudentHandler) authorizeTenant(c echo.Context, auditAction string, tenantID uint) (models.Principal, error) {
	actor, ok := middlewares.Principal(c)
	if !ok {
		return models.Principal{}, peierr.Unauthenticated()
	}
	var t models.Tenant
	if err := h.db.First(&t, "id = ?", tenantID).Error; err != nil {
		return actor, peierr.NotFound("tenant")
	}
	sub, err := h.dir.Subject(actor.ID)
	if err != nil {
		return actor, err
	}
	dec := h.engine.Authorize(sub, access.ActionManagePrincipals,
		access.Resource{TenantID: t.ID, TenantPath: t.Path}, access.Facts{})
	recordDecision(h.audit, actor.ID, auditAction, "tenant", t.ID, dec.Allowed, dec.Reason)
	if !dec.Allowed {
		return actor, peierr.Authorization(dec.Reason)
	}
	return actor, nil
}

// POST /admin/students
// Creating a student opens their first enrollment interval in the same
// transaction.
func (h *StudentHandler) Create(c echo.Context) error {
	var p studentPayload
	if err := c.Bind(&p); err != nil {
		return jsonError(c, peierr.Validation("invalid payload"))
	}
	p.normalize()
	if p.Name == "" || p.TenantID == 0 {
		return jsonError(c, peierr.Validation("name and tenant_id are required"))
	}
	var birth *time.Time
	if p.BirthDate != "" {
		b, err := time.Parse("2006-01-02", p.BirthDate)
		if err != nil {
			return jsonError(c, peierr.Validation("birth_date must be YYYY-MM-DD"))
		}
		birth = &b
	}

	actor, err := h.authorizeTenant(c, models.ActionStudentCreate, p.TenantID)
	if err != nil {
		return jsonError(c, err)
	}

	s := models.Student{Name: p.Name, BirthDate: birth, TenantID: p.TenantID}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&s).Error; err != nil {
			return peierr.Persistence("create student", err)
		}
		return tx.Create(&models.Enrollment{
			StudentID: s.ID,
			TenantID:  p.TenantID,
			StartedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return jsonError(c, err)
	}
	h.audit.Record(models.AuditEntry{
		ActorID: actor.ID, Action: models.ActionStudentCreate,
		EntityType: "student", EntityID: s.ID, Outcome: models.OutcomeSuccess,
	})
	return c.JSON(http.StatusCreated, s)
}

type moveReq struct {
	TenantID uint `json:"tenant_id"`
}

// POST /admin/students/:id/move
// Moves a student to another tenant leaf: the open enrollment is closed and a
// new one starts at the same instant, so intervals never overlap.
func (h *StudentHandler) Move(c echo.Context) error {
	id, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	var req moveReq
	if err := c.Bind(&req); err != nil || req.TenantID == 0 {
		return jsonError(c, peierr.Validation("tenant_id is required"))
	}

	var s models.Student
	if err := h.db.First(&s, "id = ?", id).Error; err != nil {
		return jsonError(c, peierr.NotFound("student"))
	}
	actor, err := h.authorizeTenant(c, models.ActionStudentMove, req.TenantID)
	if err != nil {
		return jsonError(c, err)
	}
	if s.TenantID == req.TenantID {
		return c.JSON(http.StatusOK, s)
	}

	now := time.Now().UTC()
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Enrollment{}).
			Where("student_id = ? AND ended_at IS NULL", s.ID).
			Update("ended_at", now).Error; err != nil {
			return peierr.Persistence("close enrollment", err)
		}
		if err := tx.Create(&models.Enrollment{
			StudentID: s.ID,
			TenantID:  req.TenantID,
			StartedAt: now,
		}).Error; err != nil {
			return peierr.Persistence("open enrollment", err)
		}
		if err := tx.Model(&s).Update("tenant_id", req.TenantID).Error; err != nil {
			return peierr.Persistence("move student", err)
		}
		return nil
	})
	if err != nil {
		return jsonError(c, err)
	}
	s.TenantID = req.TenantID
	h.audit.Record(models.AuditEntry{
		ActorID: actor.ID, Action: models.ActionStudentMove,
		EntityType: "student", EntityID: s.ID, Outcome: models.OutcomeSuccess,
		ChangedFields: "tenant_id", OccurredAt: now,
	})
	return c.JSON(http.StatusOK, s)
}

type assignReq struct {
	PrincipalID uint `json:"principal_id"`
}

// POST /admin/students/:id/staff
func (h *StudentHandler) AssignStaff(c echo.Context) error {
	return h.link(c, func(studentID, principalID, actorID uint) error {
		a := models.StaffAssignment{StudentID: studentID, PrincipalID: principalID, AssignedBy: actorID}
		return h.db.Create(&a).Error
	}, []string{models.RoleCoordinator, models.RoleTeacher, models.RoleTherapist})
}

// POST /admin/students/:id/family
func (h *StudentHandler) LinkFamily(c echo.Context) error {
	return h.link(c, func(studentID, principalID, _ uint) error {
		l := models.FamilyLink{StudentID: studentID, PrincipalID: principalID}
		return h.db.Create(&l).Error
	}, []string{models.RoleFamily})
}

func (h *StudentHandler) link(c echo.Context, create func(studentID, principalID, actorID uint) error, allowedRoles []string) error {
	id, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	var req assignReq
	if err := c.Bind(&req); err != nil || req.PrincipalID == 0 {
		return jsonError(c, peierr.Validation("principal_id is required"))
	}

	var s models.Student
	if err := h.db.First(&s, "id = ?", id).Error; err != nil {
		return jsonError(c, peierr.NotFound("student"))
	}
	var target models.Principal
	if err := h.db.First(&target, "id = ?", req.PrincipalID).Error; err != nil {
		return jsonError(c, peierr.NotFound("principal"))
	}
	roleOK := false
	for _, r := range allowedRoles {
		if target.Role == r {
			roleOK = true
			break
		}
	}
	if !roleOK {
		return jsonError(c, peierr.Validation("principal role cannot be linked this way"))
	}

	actor, err := h.authorizeTenant(c, models.ActionStudentLink, s.TenantID)
	if err != nil {
		return jsonError(c, err)
	}
	if err := create(s.ID, target.ID, actor.ID); err != nil {
		return jsonError(c, peierr.Persistence("create link", err))
	}
	h.audit.Record(models.AuditEntry{
		ActorID: actor.ID, Action: models.ActionStudentLink,
		EntityType: "student", EntityID: s.ID, Outcome: models.OutcomeSuccess,
	})
	return c.NoContent(http.StatusCreated)
}
