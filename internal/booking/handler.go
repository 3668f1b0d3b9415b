package booking

import (
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

func ownRows(userID string) api.Restriction {
	return api.Restriction{OwnerID: userID}
}

// ClientPolicy lets a renter read and edit the client rows linked to its
// own account.
var ClientPolicy = mutation.Policy{
	Resource:    "clients",
	Read:        rbac.KindTenant,
	Create:      rbac.KindTenant,
	Update:      rbac.KindTenant,
	Delete:      rbac.KindTenant,
	Tenanted:    true,
	SelfService: []rbac.Action{rbac.ActionRead, rbac.ActionUpdate},
	SelfList:    ownRows,
}

var ContractPolicy = mutation.Policy{
	Resource:    "contracts",
	Read:        rbac.KindTenant,
	Create:      rbac.KindTenant,
	Update:      rbac.KindTenant,
	Delete:      rbac.KindTenant,
	Tenanted:    true,
	SelfService: []rbac.Action{rbac.ActionRead},
	SelfList:    ownRows,
}

var PaymentPolicy = mutation.Policy{
	Resource:    "payments",
	Read:        rbac.KindTenant,
	Create:      rbac.KindTenant,
	Update:      rbac.KindTenant,
	Delete:      rbac.KindTenant,
	Tenanted:    true,
	SelfService: []rbac.Action{rbac.ActionRead},
	SelfList:    ownRows,
}

type Handler struct {
	clients   *mutation.Handler[Client, ClientInput]
	contracts *mutation.Handler[Contract, ContractInput]
	payments  *mutation.Handler[Payment, PaymentInput]
}

func NewHandler(deps mutation.Deps) *Handler {
	return &Handler{
		clients:   mutation.NewHandler(mutation.New(ClientPolicy, ClientStore{}, deps), "/api/v1/clients"),
		contracts: mutation.NewHandler(mutation.New(ContractPolicy, ContractStore{}, deps), "/api/v1/contracts"),
		payments:  mutation.NewHandler(mutation.New(PaymentPolicy, PaymentStore{}, deps), "/api/v1/payments"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	h.clients.RegisterRoutes(mux)
	h.contracts.RegisterRoutes(mux)
	h.payments.RegisterRoutes(mux)
}
