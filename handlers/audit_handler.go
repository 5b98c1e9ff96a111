package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
)

type AuditHandler struct {
	audit *audit.Recorder
}

func NewAuditHandler(rec *audit.Recorder) *AuditHandler { return &AuditHandler{audit: rec} }

// GET /audit?entity=&entityId=&actor=&from=&to=&page=&size=
// Route access is gated to admin / education_secretary / superadmin in the
// router; time bounds accept RFC 3339 or plain dates.
func (h *AuditHandler) Query(c echo.Context) error {
	f := audit.Filter{
		EntityType: strings.TrimSpace(c.QueryParam("entity")),
		EntityID:   uint(atoiOr(c.QueryParam("entityId"), 0)),
		ActorID:    uint(atoiOr(c.QueryParam("actor"), 0)),
	}
	f.Page, f.Size = pageSize(c)

	if v := strings.TrimSpace(c.QueryParam("from")); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "INVALID_TIME_RANGE"})
		}
		f.From = t
	}
	if v := strings.TrimSpace(c.QueryParam("to")); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "INVALID_TIME_RANGE"})
		}
		f.To = t
	}

	rows, total, err := h.audit.Query(f)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": rows, "page": f.Page, "size": f.Size, "total": total,
	})
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
