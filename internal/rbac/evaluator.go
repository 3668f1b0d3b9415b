package rbac

import (
	"strings"
	"sync"

	"github.com/rentaldesk/rentaldesk/internal/auth"
)

// Evaluator holds role capabilities as "resource:action" strings. A role
// granted "*" may do anything and "resource:*" covers every action on one
// resource. Capabilities say what a role may ever do; Check says where.
type Evaluator struct {
	roles map[auth.Role][]string
	mu    sync.RWMutex
}

func NewEvaluator() *Evaluator {
	return &Evaluator{roles: make(map[auth.Role][]string)}
}

// RegisterRole replaces the capabilities of role.
func (e *Evaluator) RegisterRole(role auth.Role, permissions []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roles[role] = append([]string(nil), permissions...)
}

// Permission formats a capability string.
func Permission(resource string, action Action) string {
	return resource + ":" + string(action)
}

// Authorize reports whether identity's role grants permission.
func (e *Evaluator) Authorize(identity *auth.Identity, permission string) Decision {
	if identity == nil {
		return deny("no identity")
	}

	e.mu.RLock()
	perms := e.roles[identity.Role]
	e.mu.RUnlock()

	resource, _, _ := strings.Cut(permission, ":")
	for _, p := range perms {
		if p == "*" || p == permission || p == resource+":*" {
			return allow()
		}
	}
	return deny("role %s has no permission for %s", identity.Role, permission)
}

// DefaultEvaluator registers the built-in capabilities of each role.
func DefaultEvaluator() *Evaluator {
	catalog := []string{
		"locations:read", "districts:read", "car_templates:read", "catalog:read",
	}
	operations := []string{
		"cars:*", "clients:*", "contracts:*", "payments:*", "tasks:*",
		"companies:read", "dashboard:read", "users:read",
	}

	e := NewEvaluator()
	e.RegisterRole(auth.RoleSystemAdmin, []string{"*"})
	e.RegisterRole(auth.RoleOwner, concat(catalog, operations, []string{
		"companies:update", "managers:*", "users:create", "audit_logs:read",
	}))
	e.RegisterRole(auth.RoleManager, concat(catalog, operations))
	e.RegisterRole(auth.RoleClient, concat(catalog, []string{
		"cars:read", "clients:read", "clients:update",
		"contracts:read", "payments:read", "tasks:read",
	}))
	return e
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

