package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/middlewares"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/tokens"
)

type TokenHandler struct {
	db     *gorm.DB
	tokens *tokens.Service
	engine *access.Engine
	dir    *access.Directory
	audit  *audit.Recorder
}

func NewTokenHandler(db *gorm.DB, ts *tokens.Service, engine *access.Engine, dir *access.Directory, rec *audit.Recorder) *TokenHandler {
	return &TokenHandler{db: db, tokens: ts, engine: engine, dir: dir, audit: rec}
}

type issueReq struct {
	TTLSeconds int `json:"ttl_seconds"`
}

func (h *TokenHandler) authorizeManage(c echo.Context, auditAction string, studentID uint) (models.Principal, error) {
	p, ok := middlewares.Principal(c)
	if !ok {
		return models.Principal{}, peierr.Unauthenticated()
	}
	res, err := h.dir.StudentResource(studentID)
	if err != nil {
		return p, err
	}
	facts, err := h.dir.Facts(p.ID, studentID)
	if err != nil {
		return p, err
	}
	sub, err := h.dir.Subject(p.ID)
	if err != nil {
		return p, err
	}
	dec := h.engine.Authorize(sub, access.ActionManageTokens, res, facts)
	recordDecision(h.audit, p.ID, auditAction, "student", studentID, dec.Allowed, dec.Reason)
	if !dec.Allowed {
		return p, peierr.Authorization(dec.Reason)
	}
	return p, nil
}

// POST /students/:id/family-tokens
func (h *TokenHandler) Issue(c echo.Context) error {
	studentID, ok := paramUint(c, "id")
	if !ok {
		return jsonError(c, peierr.Validation("invalid student id"))
	}
	var req issueReq
	if err := c.Bind(&req); err != nil {
		return jsonError(c, peierr.Validation("invalid payload"))
	}

	p, err := h.authorizeManage(c, models.ActionTokenIssue, studentID)
	if err != nil {
		return jsonError(c, err)
	}

	issued, err := h.tokens.Issue(studentID, p.ID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusCreated, issued)
}

// DELETE /family-tokens/:id
func (h *TokenHandler) Revoke(c echo.Context) error {
	tokenID := c.Param("id")
	if tokenID == "" {
		return jsonError(c, peierr.Validation("invalid token id"))
	}

	var t models.AccessToken
	if err := h.db.First(&t, "id = ?", tokenID).Error; err != nil {
		return jsonError(c, peierr.NotFound("access token"))
	}

	p, err := h.authorizeManage(c, models.ActionTokenRevoke, t.StudentID)
	if err != nil {
		return jsonError(c, err)
	}
	if err := h.tokens.Revoke(tokenID, p.ID); err != nil {
		return jsonError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
