package models

import "time"

// AccessToken grants a family read access to one student's active PEI without
// a full account. Only the SHA-256 of the secret is stored; the plaintext is
// returned once at issue time. Expiry is absolute, checked at validation —
// there is no sweeper. Revocation is terminal.
type AccessToken struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"` // uuid
	TokenHash      string     `json:"-" gorm:"uniqueIndex;size:64;not null"`
	StudentID      uint       `json:"student_id" gorm:"index;not null"`
	IssuedBy       uint       `json:"issued_by" gorm:"not null"`
	IssuedAt       time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"not null"`
	Revoked        bool       `json:"revoked" gorm:"not null;default:false"`
	AccessCount    int        `json:"access_count" gorm:"not null;default:0"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}
