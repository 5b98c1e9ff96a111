package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/middlewares"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

// PrincipalHandler drives the approval workflow: registered accounts sit in
// pending until an admin within scope approves them; suspension is the only
// way off the system, accounts are never deleted.
type PrincipalHandler struct {
	db     *gorm.DB
	engine *access.Engine
	dir    *access.Directory
	audit  *audit.Recorder
}

func NewPrincipalHandler(db *gorm.DB, engine *access.Engine, dir *access.Directory, rec *audit.Recorder) *PrincipalHandler {
	return &PrincipalHandler{db: db, engine: engine, dir: dir, audit: rec}
}

// POST /admin/principals/:id/approve
func (h *PrincipalHandler) Approve(c echo.Context) error {
	return h.setStatus(c, models.PrincipalActive)
}

// POST /admin/principals/:id/suspend
func (h *PrincipalHandler) Suspend(c echo.Context) error {
	return h.setStatus(c, models.PrincipalSuspended)
}

func (h *PrincipalHandler) setStatus(c echo.Context, status string) error {
	actor, ok := middlewares.Principal(c)
	if !ok {
		return jsonError(c, peierr.Unauthenticated())
	}
	id, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid principal id"))
	}

	var target models.Principal
	if err := h.db.First(&target, "id = ?", id).Error; err != nil {
		return jsonError(c, peierr.NotFound("principal"))
	}
	var targetTenant models.Tenant
	if err := h.db.First(&targetTenant, "id = ?", target.TenantID).Error; err != nil {
		return jsonError(c, peierr.Persistence("load tenant", err))
	}

	sub, err := h.dir.Subject(actor.ID)
	if err != nil {
		return jsonError(c, err)
	}
	dec := h.engine.Authorize(sub, access.ActionManagePrincipals,
		access.Resource{TenantID: targetTenant.ID, TenantPath: targetTenant.Path}, access.Facts{})
	recordDecision(h.audit, actor.ID, models.ActionPrincipalState, "principal", target.ID, dec.Allowed, dec.Reason)
	if !dec.Allowed {
		return jsonError(c, peierr.Authorization(dec.Reason))
	}

	if err := h.db.Model(&target).Update("status", status).Error; err != nil {
		return jsonError(c, peierr.Persistence("update principal status", err))
	}
	target.Status = status
	return c.JSON(http.StatusOK, target)
}
