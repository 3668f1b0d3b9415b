package rbac

import "fmt"

// Action is a mutation or read verb.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Request is everything Check needs; it carries no context or store.
type Request struct {
	Scope    Scope
	Resource string
	Action   Action
	// Required is the narrowest scope kind allowed to act. Empty means tenant.
	Required Kind
	// TargetCompanyID is the record's tenant, nil for records without one.
	TargetCompanyID *int64
	// TargetOwnerID is the identity owning the record, empty when none.
	TargetOwnerID string
	CallerID      string
}

// Decision is the result of Check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Check evaluates the decision table; the first matching rule wins.
func Check(req Request) Decision {
	switch req.Scope.Kind {
	case KindSystem:
		return allow()
	case KindTenant, KindSelf:
	default:
		return deny("unknown scope %q", req.Scope.Kind)
	}

	required := req.Required
	if required == "" {
		required = KindTenant
	}

	switch required {
	case KindSystem:
		return deny("%s %s requires system scope", req.Action, req.Resource)
	case KindTenant:
		if req.Scope.Kind != KindTenant {
			return deny("%s %s requires a company scope", req.Action, req.Resource)
		}
		target := req.Scope.CompanyID
		if req.TargetCompanyID != nil {
			target = *req.TargetCompanyID
		}
		if target != req.Scope.CompanyID {
			return deny("%s belongs to another company", req.Resource)
		}
		return allow()
	case KindSelf:
		if req.TargetOwnerID != "" && req.TargetOwnerID == req.CallerID {
			return allow()
		}
		// Unowned rows are open to self scope only when no company holds them.
		if req.Scope.Kind == KindSelf && req.TargetOwnerID == "" && req.TargetCompanyID == nil {
			return allow()
		}
		return deny("%s is not owned by caller", req.Resource)
	default:
		return deny("unknown required scope %q", required)
	}
}
