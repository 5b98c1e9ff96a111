package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/middlewares"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

type TenantHandler struct {
	db     *gorm.DB
	engine *access.Engine
	dir    *access.Directory
	audit  *audit.Recorder
}

func NewTenantHandler(db *gorm.DB, engine *access.Engine, dir *access.Directory, rec *audit.Recorder) *TenantHandler {
	return &TenantHandler{db: db, engine: engine, dir: dir, audit: rec}
}

type tenantPayload struct {
	ParentID *uint  `json:"parent_id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
}

// POST /admin/tenants
// Root networks can only be created by a superadmin; child nodes by anyone
// administering the parent.
func (h *TenantHandler) Create(c echo.Context) error {
	actor, ok := middlewares.Principal(c)
	if !ok {
		return jsonError(c, peierr.Unauthenticated())
	}
	var p tenantPayload
	if err := c.Bind(&p); err != nil {
		return jsonError(c, peierr.Validation("invalid payload"))
	}
	p.Name = strings.Join(strings.Fields(p.Name), " ")
	switch p.Kind {
	case models.TenantNetwork, models.TenantSchool, models.TenantClass:
	default:
		return jsonError(c, peierr.Validation("kind must be network, school or class"))
	}
	if p.Name == "" {
		return jsonError(c, peierr.Validation("name is required"))
	}
	if (p.Kind == models.TenantNetwork) != (p.ParentID == nil) {
		return jsonError(c, peierr.Validation("networks are roots, schools and classes need a parent"))
	}

	if p.ParentID == nil {
		if actor.Role != models.RoleSuperAdmin {
			recordDecision(h.audit, actor.ID, models.ActionTenantCreate, "tenant", 0,
				false, "only superadmin creates networks")
			return jsonError(c, peierr.Authorization("only superadmin creates networks"))
		}
	} else {
		var parent models.Tenant
		if err := h.db.First(&parent, "id = ?", *p.ParentID).Error; err != nil {
			return jsonError(c, peierr.NotFound("parent tenant"))
		}
		sub, err := h.dir.Subject(actor.ID)
		if err != nil {
			return jsonError(c, err)
		}
		dec := h.engine.Authorize(sub, access.ActionManagePrincipals,
			access.Resource{TenantID: parent.ID, TenantPath: parent.Path}, access.Facts{})
		recordDecision(h.audit, actor.ID, models.ActionTenantCreate, "tenant", parent.ID, dec.Allowed, dec.Reason)
		if !dec.Allowed {
			return jsonError(c, peierr.Authorization(dec.Reason))
		}
	}

	t, err := h.dir.CreateTenant(p.ParentID, p.Kind, p.Name)
	if err != nil {
		return jsonError(c, err)
	}
	h.audit.Record(models.AuditEntry{
		ActorID: actor.ID, Action: models.ActionTenantCreate,
		EntityType: "tenant", EntityID: t.ID, Outcome: models.OutcomeSuccess,
	})
	return c.JSON(http.StatusCreated, t)
}

// GET /admin/tenants
func (h *TenantHandler) List(c echo.Context) error {
	actor, ok := middlewares.Principal(c)
	if !ok {
		return jsonError(c, peierr.Unauthenticated())
	}
	sub, err := h.dir.Subject(actor.ID)
	if err != nil {
		return jsonError(c, err)
	}

	tx := h.db.Model(&models.Tenant{}).Order("path ASC")
	// non-superadmins see their own subtree only
	if actor.Role != models.RoleSuperAdmin {
		tx = tx.Where("path LIKE ?", sub.TenantPath+"%")
	}
	var rows []models.Tenant
	if err := tx.Find(&rows).Error; err != nil {
		return jsonError(c, peierr.Persistence("list tenants", err))
	}
	return c.JSON(http.StatusOK, rows)
}
