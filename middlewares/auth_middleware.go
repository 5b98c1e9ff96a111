package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
)

// ContextPrincipal is the echo context key the authenticated principal is
// stored under.
const ContextPrincipal = "principal"

type Claims struct {
	Sub  uint   `json:"sub"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func extractBearer(c echo.Context) (string, error) {
	h := c.Request().Header.Get("Authorization")
	if h == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "MISSING_AUTH_HEADER"})
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "INVALID_AUTH_HEADER"})
	}
	return parts[1], nil
}

// RequireAuth parses the HS256 bearer token, loads the principal and rejects
// anyone who is not an active account. Pending and suspended principals hold
// valid credentials but may not act.
func RequireAuth(secret string, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, err := extractBearer(c)
			if err != nil {
				return err
			}
			token, err := jwt.ParseWithClaims(tok, &Claims{}, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "INVALID_TOKEN_METHOD"})
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "INVALID_TOKEN"})
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "INVALID_CLAIMS"})
			}
			if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "TOKEN_EXPIRED"})
			}

			var p models.Principal
			if err := db.First(&p, "id = ?", claims.Sub).Error; err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "UNKNOWN_PRINCIPAL"})
			}
			if p.Status != models.PrincipalActive {
				return echo.NewHTTPError(http.StatusForbidden, map[string]any{"error": "ACCOUNT_NOT_ACTIVE"})
			}
			c.Set(ContextPrincipal, p)
			return next(c)
		}
	}
}

// Principal returns the authenticated principal set by RequireAuth.
func Principal(c echo.Context) (models.Principal, bool) {
	p, ok := c.Get(ContextPrincipal).(models.Principal)
	return p, ok
}

// RequireRole gates a route group to a fixed role set. Row-level decisions
// still go through the access engine inside the handler; this only trims
// obviously wrong roles early.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "NOT_AUTHENTICATED"})
			}
			if _, ok := allowed[strings.ToLower(p.Role)]; !ok {
				return echo.NewHTTPError(http.StatusForbidden, map[string]any{"error": "FORBIDDEN"})
			}
			return next(c)
		}
	}
}
