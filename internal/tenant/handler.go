package tenant

import (
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// CompanyPolicy: only system scope creates or deletes companies; an owner
// or manager may read and edit its own.
var CompanyPolicy = mutation.Policy{
	Resource:   "companies",
	Read:       rbac.KindTenant,
	Create:     rbac.KindSystem,
	Update:     rbac.KindTenant,
	Delete:     rbac.KindSystem,
	Tenanted:   true,
	SelfTenant: true,
}

var ManagerPolicy = mutation.Policy{
	Resource: "managers",
	Read:     rbac.KindTenant,
	Create:   rbac.KindTenant,
	Update:   rbac.KindTenant,
	Delete:   rbac.KindTenant,
	Tenanted: true,
}

// Handler serves companies and manager assignments.
type Handler struct {
	companies *mutation.Handler[Company, CompanyInput]
	managers  *mutation.Handler[Manager, ManagerInput]
}

func NewHandler(companies *Store, managers *ManagerStore, deps mutation.Deps) *Handler {
	return &Handler{
		companies: mutation.NewHandler(mutation.New(CompanyPolicy, companies, deps), "/api/v1/companies"),
		managers:  mutation.NewHandler(mutation.New(ManagerPolicy, managers, deps), "/api/v1/managers"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	h.companies.RegisterRoutes(mux)
	h.managers.RegisterRoutes(mux)
}
