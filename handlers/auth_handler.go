package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
)

type AuthHandler struct {
	db        *gorm.DB
	jwtSecret string
}

func NewAuthHandler(db *gorm.DB, jwtSecret string) *AuthHandler {
	return &AuthHandler{db: db, jwtSecret: jwtSecret}
}

func (h *AuthHandler) signJWT(sub uint, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tk.SignedString([]byte(h.jwtSecret))
}

type RegisterReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	TenantID uint   `json:"tenant_id"`
}

type LoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /auth/register
// Creates a pending principal. Nobody can act until an admin approves the
// account; superadmin is not self-registerable.
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": "INVALID_PAYLOAD"})
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	pass := strings.TrimSpace(req.Password)
	name := strings.Join(strings.Fields(req.FullName), " ")
	if email == "" || pass == "" || name == "" || req.TenantID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": "MISSING_FIELDS"})
	}
	if !models.ValidRole(req.Role) || req.Role == models.RoleSuperAdmin {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": "INVALID_ROLE"})
	}

	var tenant models.Tenant
	if err := h.db.First(&tenant, "id = ?", req.TenantID).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": "UNKNOWN_TENANT"})
	}

	var dup models.Principal
	if err := h.db.Where("email = ?", email).First(&dup).Error; err == nil {
		return echo.NewHTTPError(http.StatusConflict, map[string]any{"error": "EMAIL_EXISTS"})
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	p := models.Principal{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     name,
		TenantID:     req.TenantID,
		Role:         req.Role,
		Status:       models.PrincipalPending,
	}
	if err := h.db.Create(&p).Error; err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, map[string]any{"id": p.ID, "status": p.Status})
}

// POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": "INVALID_PAYLOAD"})
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]any{"error": "MISSING_FIELDS"})
	}

	var p models.Principal
	if err := h.db.Where("email = ?", email).First(&p).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "INVALID_CREDENTIALS"})
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, map[string]any{"error": "INVALID_CREDENTIALS"})
	}
	switch p.Status {
	case models.PrincipalPending:
		return echo.NewHTTPError(http.StatusForbidden, map[string]any{"error": "PENDING_APPROVAL"})
	case models.PrincipalSuspended:
		return echo.NewHTTPError(http.StatusForbidden, map[string]any{"error": "ACCOUNT_SUSPENDED"})
	}

	token, err := h.signJWT(p.ID, p.Role, 7*24*time.Hour)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, map[string]any{"error": "TOKEN_GEN_FAILED"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id": p.ID, "role": p.Role, "email": p.Email, "name": p.FullName, "tenant_id": p.TenantID,
		},
	})
}
