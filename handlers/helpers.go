package handlers

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/peierr"
)

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func paramUint(c echo.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func pageSize(c echo.Context) (int, int) {
	page := atoiOr(c.QueryParam("page"), 1)
	if page < 1 {
		page = 1
	}
	size := atoiOr(c.QueryParam("size"), 20)
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

// jsonError maps the error taxonomy onto HTTP statuses with the stable code
// in the body.
func jsonError(c echo.Context, err error) error {
	return c.JSON(peierr.HTTPStatus(err), map[string]any{"error": peierr.CodeOf(err)})
}

// recordDecision writes the allow/deny outcome of an access-engine call.
// The engine itself never logs, so every call site funnels through here and
// denials look the same everywhere.
func recordDecision(rec *audit.Recorder, actorID uint, action, entityType string, entityID uint, allowed bool, reason string) {
	outcome := models.OutcomeSuccess
	if !allowed {
		outcome = models.OutcomeDenied
	}
	rec.Record(models.AuditEntry{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Outcome:    outcome,
		Detail:     reason,
		OccurredAt: time.Now().UTC(),
	})
}
