package models

import "time"

type Student struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Name      string     `json:"name" gorm:"size:120;not null"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	TenantID  uint       `json:"tenant_id" gorm:"index;not null"` // current class/school leaf
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Enrollment keeps the historical tenant membership of a student. EndedAt is
// nil for the current enrollment; intervals for one student never overlap.
type Enrollment struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	StudentID uint       `json:"student_id" gorm:"index;not null"`
	TenantID  uint       `json:"tenant_id" gorm:"index;not null"`
	StartedAt time.Time  `json:"started_at" gorm:"not null"`
	EndedAt   *time.Time `json:"ended_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// StaffAssignment lists which staff principals work with a student. Rule 3 of
// the access engine requires membership here for PEI reads and writes.
type StaffAssignment struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	StudentID   uint      `json:"student_id" gorm:"index:idx_staff_assign,unique;not null"`
	PrincipalID uint      `json:"principal_id" gorm:"index:idx_staff_assign,unique;not null"`
	AssignedBy  uint      `json:"assigned_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// FamilyLink ties a family principal to their child.
type FamilyLink struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	StudentID   uint      `json:"student_id" gorm:"index:idx_family_link,unique;not null"`
	PrincipalID uint      `json:"principal_id" gorm:"index:idx_family_link,unique;not null"`
	CreatedAt   time.Time `json:"created_at"`
}
