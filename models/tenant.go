package models

import "time"

const (
	TenantNetwork = "network"
	TenantSchool  = "school"
	TenantClass   = "class"
)

// Tenant is one node of the network → school → class hierarchy. Path is the
// materialized ancestor chain ("/1/4/9/"), written once at creation so that
// at-or-below checks are a prefix comparison instead of a recursive walk.
type Tenant struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ParentID  *uint     `json:"parent_id" gorm:"index"` // nil at the network root
	Kind      string    `json:"kind" gorm:"size:20;not null"`
	Name      string    `json:"name" gorm:"size:120;not null"`
	Path      string    `json:"path" gorm:"size:255;index;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
