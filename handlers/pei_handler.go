package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/middlewares"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/store"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/tokens"
)

type PEIHandler struct {
	db     *gorm.DB
	store  *store.Store
	engine *access.Engine
	dir    *access.Directory
	tokens *tokens.Service
	audit  *audit.Recorder
}

func NewPEIHandler(db *gorm.DB, st *store.Store, engine *access.Engine, dir *access.Directory, ts *tokens.Service, rec *audit.Recorder) *PEIHandler {
	return &PEIHandler{db: db, store: st, engine: engine, dir: dir, tokens: ts, audit: rec}
}

// authorize runs the row-level check for a session principal against one
// student and records the decision. Returns the resource on allow.
func (h *PEIHandler) authorize(c echo.Context, action access.Action, auditAction string, studentID uint) (models.Principal, access.Resource, error) {
	p, ok := middlewares.Principal(c)
	if !ok {
		return models.Principal{}, access.Resource{}, peierr.Unauthenticated()
	}
	res, err := h.dir.StudentResource(studentID)
	if err != nil {
		return p, access.Resource{}, err
	}
	facts, err := h.dir.Facts(p.ID, studentID)
	if err != nil {
		return p, access.Resource{}, err
	}
	sub, err := h.dir.Subject(p.ID)
	if err != nil {
		return p, access.Resource{}, err
	}

	dec := h.engine.Authorize(sub, action, res, facts)
	recordDecision(h.audit, p.ID, auditAction, "student", studentID, dec.Allowed, dec.Reason)
	if !dec.Allowed {
		return p, access.Resource{}, peierr.Authorization(dec.Reason)
	}
	return p, res, nil
}

func bindPayload(c echo.Context) (datatypes.JSON, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, peierr.Validation("unreadable body")
	}
	if len(raw) == 0 || !json.Valid(raw) {
		return nil, peierr.Validation("body must be a JSON document")
	}
	return datatypes.JSON(raw), nil
}

// POST /students/:id/pei-versions
func (h *PEIHandler) CreateVersion(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	payload, err := bindPayload(c)
	if err != nil {
		return jsonError(c, err)
	}

	p, _, err := h.authorize(c, access.ActionWritePEI, models.ActionVersionCreate, studentID)
	if err != nil {
		return jsonError(c, err)
	}

	v, err := h.store.CreateVersion(c.Request().Context(), studentID, p.ID, payload)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// GET /students/:id/pei-versions/active
// Reachable either with a session or with ?access_token= issued to the
// student's family.
func (h *PEIHandler) GetActive(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}

	if secret := c.QueryParam("access_token"); secret != "" {
		return h.getActiveByToken(c, studentID, secret)
	}

	_, _, err := h.authorize(c, access.ActionReadPEI, models.ActionVersionRead, studentID)
	if err != nil {
		return jsonError(c, err)
	}
	v, err := h.store.GetActiveVersion(studentID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// getActiveByToken validates the family token and still runs the engine:
// the token only carries the family rule's facts, it does not bypass the
// decision table.
func (h *PEIHandler) getActiveByToken(c echo.Context, studentID uint, secret string) error {
	tok, err := h.tokens.Validate(secret)
	if err != nil {
		return jsonError(c, err)
	}

	res, err := h.dir.StudentResource(studentID)
	if err != nil {
		return jsonError(c, err)
	}
	sub := access.Subject{Principal: models.Principal{Role: models.RoleFamily}}
	dec := h.engine.Authorize(sub, access.ActionReadPEI, res, access.Facts{TokenStudentID: tok.StudentID})
	recordDecision(h.audit, 0, models.ActionVersionRead, "student", studentID, dec.Allowed, dec.Reason)
	if !dec.Allowed {
		return jsonError(c, peierr.Authorization(dec.Reason))
	}
	if err := h.tokens.RecordUse(tok); err != nil {
		return jsonError(c, err)
	}

	v, err := h.store.GetActiveVersion(studentID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// GET /students/:id/pei-versions
func (h *PEIHandler) ListVersions(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	_, _, err := h.authorize(c, access.ActionReadPEI, models.ActionVersionRead, studentID)
	if err != nil {
		return jsonError(c, err)
	}

	page, size := pageSize(c)
	rows, total, err := h.store.ListVersions(studentID, page, size)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": rows, "page": page, "size": size, "total": total,
	})
}

// GET /students/:id/pei-versions/compare?from=&to=
func (h *PEIHandler) CompareVersions(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	from := atoiOr(c.QueryParam("from"), 0)
	to := atoiOr(c.QueryParam("to"), 0)
	if from < 1 || to < 1 {
		return jsonError(c, peierr.Validation("from and to must be version numbers"))
	}
	_, _, err := h.authorize(c, access.ActionReadPEI, models.ActionVersionRead, studentID)
	if err != nil {
		return jsonError(c, err)
	}

	diff, err := h.store.CompareVersions(studentID, from, to)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, diff)
}

// POST /students/:id/pei-drafts
func (h *PEIHandler) SaveDraft(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	payload, err := bindPayload(c)
	if err != nil {
		return jsonError(c, err)
	}
	p, _, err := h.authorize(c, access.ActionWritePEI, models.ActionDraftSave, studentID)
	if err != nil {
		return jsonError(c, err)
	}

	d, err := h.store.SaveDraft(c.Request().Context(), studentID, p.ID, payload)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// POST /pei-drafts/:id/submit
func (h *PEIHandler) SubmitDraft(c echo.Context) error {
	draftID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid draft id"))
	}

	var draft models.PEIVersion
	if err := h.db.First(&draft, "id = ?", draftID).Error; err != nil {
		return jsonError(c, peierr.NotFound("draft"))
	}
	p, _, err := h.authorize(c, access.ActionWritePEI, models.ActionVersionCreate, draft.StudentID)
	if err != nil {
		return jsonError(c, err)
	}

	v, err := h.store.SubmitDraft(c.Request().Context(), draftID, p.ID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// POST /students/:id/pei-versions/:version/approve
func (h *PEIHandler) ApproveVersion(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	version := atoiOr(c.Param("version"), 0)
	if version < 1 {
		return jsonError(c, peierr.Validation("invalid version number"))
	}
	p, _, err := h.authorize(c, access.ActionApprovePEI, models.ActionVersionApprove, studentID)
	if err != nil {
		return jsonError(c, err)
	}

	v, err := h.store.ApproveVersion(c.Request().Context(), studentID, version, p.ID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
