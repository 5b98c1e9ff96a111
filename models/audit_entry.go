package models

import "time"

const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
)

// Audit action kinds. New kinds may be added; existing ones are never renamed
// because stored entries reference them forever.
const (
	ActionVersionCreate  = "pei.version.create"
	ActionVersionApprove = "pei.version.approve"
	ActionVersionRead    = "pei.version.read"
	ActionDraftSave      = "pei.draft.save"
	ActionTokenIssue     = "token.issue"
	ActionTokenValidate  = "token.validate"
	ActionTokenRevoke    = "token.revoke"
	ActionPrincipalState = "principal.state"
	ActionStudentCreate  = "student.create"
	ActionStudentMove    = "student.move"
	ActionStudentLink    = "student.link"
	ActionTenantCreate   = "tenant.create"
)

// AuditEntry is append-only. OccurredAt is assigned when the triggering event
// happens, not when the row lands, so entries for one entity keep the causal
// order of the operations even though persistence is asynchronous.
// Entries reference actors and entities by id only and outlive them.
type AuditEntry struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ActorID       uint      `json:"actor_id" gorm:"index"` // 0 for anonymous token access
	Action        string    `json:"action" gorm:"size:40;index;not null"`
	EntityType    string    `json:"entity_type" gorm:"size:30;index;not null"`
	EntityID      uint      `json:"entity_id" gorm:"index"`
	ChangedFields string    `json:"changed_fields" gorm:"size:500"` // comma-joined field names, not diffs
	Outcome       string    `json:"outcome" gorm:"size:10;not null"`
	Detail        string    `json:"detail" gorm:"size:255"`
	OccurredAt    time.Time `json:"occurred_at" gorm:"index;not null"`
}
