package models

import "time"

// Roles form a closed set; authorization dispatches over them as data.
const (
	RoleSuperAdmin         = "superadmin"
	RoleAdmin              = "admin"
	RoleEducationSecretary = "education_secretary"
	RoleCoordinator        = "coordinator"
	RoleTeacher            = "teacher"
	RoleTherapist          = "therapist"
	RoleFamily             = "family"
)

const (
	PrincipalPending   = "pending"
	PrincipalActive    = "active"
	PrincipalSuspended = "suspended"
)

// Principal is any account that can act on the system. Principals are never
// deleted; suspension is the soft-disable.
type Principal struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;size:120;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	FullName     string    `json:"full_name" gorm:"size:120;not null"`
	TenantID     uint      `json:"tenant_id" gorm:"index;not null"`
	Role         string    `json:"role" gorm:"size:30;not null"`
	Status       string    `json:"status" gorm:"size:20;not null;default:'pending'"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func ValidRole(r string) bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleEducationSecretary,
		RoleCoordinator, RoleTeacher, RoleTherapist, RoleFamily:
		return true
	}
	return false
}
