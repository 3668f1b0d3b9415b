package rbac

import (
	"net/url"
	"strconv"

	"github.com/rentaldesk/rentaldesk/internal/auth"
)

const (
	ParamAdminMode = "admin_mode"
	ParamCompanyID = "company_id"
)

// ApplyOverlay narrows a system admin's scope to one company when the
// request carries admin_mode=true and a valid company_id. For every other
// role, and for malformed parameters, the resolved scope is returned
// unchanged.
func ApplyOverlay(resolved Scope, role auth.Role, query url.Values) (Scope, bool) {
	if role != auth.RoleSystemAdmin || resolved.Kind != KindSystem {
		return resolved, false
	}
	if query.Get(ParamAdminMode) != "true" {
		return resolved, false
	}

	companyID, err := strconv.ParseInt(query.Get(ParamCompanyID), 10, 64)
	if err != nil || companyID <= 0 {
		return resolved, false
	}
	return Tenant(companyID, resolved.UserID), true
}
