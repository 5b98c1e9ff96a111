package access

import (
	"strings"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
)

type Action string

const (
	ActionReadPEI          Action = "pei.read"
	ActionWritePEI         Action = "pei.write"
	ActionApprovePEI       Action = "pei.approve"
	ActionManageTokens     Action = "tokens.manage"
	ActionReadAudit        Action = "audit.read"
	ActionManagePrincipals Action = "principals.manage"
)

// Subject is a principal plus its resolved tenant path.
type Subject struct {
	Principal  models.Principal
	TenantPath string
}

// Resource identifies what is being acted on: the owning tenant node (with
// its materialized path) and, for PEI operations, the student.
type Resource struct {
	TenantID   uint
	TenantPath string
	StudentID  uint
}

// Facts are the pre-fetched relationship bits the rules need. Fetching them
// up front keeps Authorize free of I/O and safe to call from any task.
type Facts struct {
	AssignedToStudent bool // subject is on the student's staff roster
	FamilyOfStudent   bool // subject is linked to the student as family
	TokenStudentID    uint // nonzero when access arrives via a family token
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// rule is one row of the decision table. Rules are evaluated in order and the
// first one whose role set contains the subject's role decides.
type rule struct {
	name  string
	roles map[string]bool
	eval  func(sub Subject, action Action, res Resource, f Facts) Decision
}

var atOrBelow = func(resPath, subPath string) bool {
	return strings.HasPrefix(resPath, subPath)
}

var rules = []rule{
	{
		name:  "superadmin",
		roles: set(models.RoleSuperAdmin),
		eval: func(Subject, Action, Resource, Facts) Decision {
			return allow()
		},
	},
	{
		name:  "tenant-admin",
		roles: set(models.RoleAdmin, models.RoleEducationSecretary),
		eval: func(sub Subject, _ Action, res Resource, _ Facts) Decision {
			if atOrBelow(res.TenantPath, sub.TenantPath) {
				return allow()
			}
			return deny("resource outside administered tenant scope")
		},
	},
	{
		name:  "assigned-staff",
		roles: set(models.RoleCoordinator, models.RoleTeacher, models.RoleTherapist),
		eval: func(sub Subject, action Action, res Resource, f Facts) Decision {
			switch action {
			case ActionReadPEI, ActionWritePEI, ActionApprovePEI:
			case ActionManageTokens:
				if sub.Principal.Role != models.RoleCoordinator {
					return deny("only coordinators manage family tokens")
				}
			default:
				return deny("action not available to staff role")
			}
			if !atOrBelow(res.TenantPath, sub.TenantPath) {
				return deny("student outside bound tenant")
			}
			if !f.AssignedToStudent {
				return deny("not assigned to this student")
			}
			return allow()
		},
	},
	{
		name:  "family-read-only",
		roles: set(models.RoleFamily),
		eval: func(sub Subject, action Action, res Resource, f Facts) Decision {
			if action != ActionReadPEI && action != ActionApprovePEI {
				return deny("family access is read-only")
			}
			if f.FamilyOfStudent || (f.TokenStudentID != 0 && f.TokenStudentID == res.StudentID) {
				return allow()
			}
			return deny("not linked to this student")
		},
	},
}

// Engine evaluates the ordered rule table. It never mutates state and never
// logs; callers record the decision to the audit trail so denials are logged
// uniformly across call sites.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) Authorize(sub Subject, action Action, res Resource, f Facts) Decision {
	for _, r := range rules {
		if r.roles[sub.Principal.Role] {
			return r.eval(sub, action, res, f)
		}
	}
	return deny("no rule for role")
}

func set(roles ...string) map[string]bool {
	m := make(map[string]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}
