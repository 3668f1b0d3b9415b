package task

import (
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// Policy lets an assignee without a company read its own tasks.
var Policy = mutation.Policy{
	Resource:    "tasks",
	Read:        rbac.KindTenant,
	Create:      rbac.KindTenant,
	Update:      rbac.KindTenant,
	Delete:      rbac.KindTenant,
	Tenanted:    true,
	SelfService: []rbac.Action{rbac.ActionRead},
	SelfList: func(userID string) api.Restriction {
		return api.Restriction{OwnerID: userID}
	},
}

type Handler struct {
	tasks *mutation.Handler[Task, Input]
}

func NewHandler(deps mutation.Deps) *Handler {
	return &Handler{tasks: mutation.NewHandler(mutation.New(Policy, Store{}, deps), "/api/v1/tasks")}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	h.tasks.RegisterRoutes(mux)
}
