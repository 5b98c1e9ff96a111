package routes

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/config"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/handlers"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/middlewares"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/store"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/tokens"
)

// Deps carries the shared components the handlers close over.
type Deps struct {
	DB     *gorm.DB
	Config *config.Config
	Store  *store.Store
	Engine *access.Engine
	Dir    *access.Directory
	Tokens *tokens.Service
	Audit  *audit.Recorder
}

// Register wires all HTTP routes.
func Register(e *echo.Echo, d Deps) {
	auth := handlers.NewAuthHandler(d.DB, d.Config.JWTSecret)
	pei := handlers.NewPEIHandler(d.DB, d.Store, d.Engine, d.Dir, d.Tokens, d.Audit)
	tok := handlers.NewTokenHandler(d.DB, d.Tokens, d.Engine, d.Dir, d.Audit)
	aud := handlers.NewAuditHandler(d.Audit)
	pri := handlers.NewPrincipalHandler(d.DB, d.Engine, d.Dir, d.Audit)
	std := handlers.NewStudentHandler(d.DB, d.Engine, d.Dir, d.Audit)
	ten := handlers.NewTenantHandler(d.DB, d.Engine, d.Dir, d.Audit)

	e.GET("/healthz", handlers.Health)

	// ===== Public auth =====
	e.POST("/auth/register", auth.Register)
	e.POST("/auth/login", auth.Login)

	authMW := middlewares.RequireAuth(d.Config.JWTSecret, d.DB)

	// ===== PEI versions =====
	// GetActive stays outside the auth group: with ?access_token= a family
	// reads without a session, and the handler authenticates the session path
	// itself.
	e.GET("/students/:id/pei-versions/active", pei.GetActive, optionalAuth(authMW))

	s := e.Group("/students", authMW)
	s.POST("/:id/pei-versions", pei.CreateVersion)
	s.GET("/:id/pei-versions", pei.ListVersions)
	s.GET("/:id/pei-versions/compare", pei.CompareVersions)
	s.POST("/:id/pei-versions/:version/approve", pei.ApproveVersion)
	s.POST("/:id/pei-drafts", pei.SaveDraft)
	s.POST("/:id/family-tokens", tok.Issue)

	e.POST("/pei-drafts/:id/submit", pei.SubmitDraft, authMW)
	e.DELETE("/family-tokens/:id", tok.Revoke, authMW)

	// ===== Audit (admin and education secretary only) =====
	e.GET("/audit", aud.Query, authMW, middlewares.RequireRole(
		models.RoleSuperAdmin, models.RoleAdmin, models.RoleEducationSecretary))

	// ===== Admin =====
	admin := e.Group("/admin", authMW, middlewares.RequireRole(
		models.RoleSuperAdmin, models.RoleAdmin, models.RoleEducationSecretary))
	admin.POST("/principals/:id/approve", pri.Approve)
	admin.POST("/principals/:id/suspend", pri.Suspend)
	admin.POST("/tenants", ten.Create)
	admin.GET("/tenants", ten.List)
	admin.POST("/students", std.Create)
	admin.POST("/students/:id/move", std.Move)
	admin.POST("/students/:id/staff", std.AssignStaff)
	admin.POST("/students/:id/family", std.LinkFamily)
}

// optionalAuth runs the auth middleware only when no access_token query
// parameter is present.
func optionalAuth(authMW echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withAuth := authMW(next)
		return func(c echo.Context) error {
			if c.QueryParam("access_token") != "" {
				return next(c)
			}
			return withAuth(c)
		}
	}
}
