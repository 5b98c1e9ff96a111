package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	VersionDraft    = "draft"
	VersionActive   = "active"
	VersionObsolete = "obsolete"
)

// PEIVersion is one revision of a student's PEI. Drafts hold version number 0
// and stay editable; submission assigns the next number for the student under
// the per-student write lock, which is what guarantees numbers are unique and
// monotonic. The partial unique index backs the lock up at the database:
// drafts share number 0 and are excluded, submitted numbers can never
// collide. Once a version leaves draft it is immutable except for the
// active → obsolete flip and the approval metadata, both guarded by the same
// lock. Versions are never physically deleted.
type PEIVersion struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	StudentID     uint           `json:"student_id" gorm:"not null;uniqueIndex:uidx_student_version,where:version_number > 0"`
	VersionNumber int            `json:"version_number" gorm:"not null;uniqueIndex:uidx_student_version"` // 0 while draft
	Status        string         `json:"status" gorm:"size:20;index;not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	AuthorID      uint           `json:"author_id" gorm:"not null"`
	ApproverID    *uint          `json:"approver_id,omitempty"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
