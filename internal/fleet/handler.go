package fleet

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// globalPolicy: anyone signed in reads, only system scope writes.
func globalPolicy(resource string) mutation.Policy {
	return mutation.Policy{
		Resource:   resource,
		Read:       rbac.KindSelf,
		Create:     rbac.KindSystem,
		Update:     rbac.KindSystem,
		Delete:     rbac.KindSystem,
		PublicRead: true,
	}
}

var CarPolicy = mutation.Policy{
	Resource:    "cars",
	Read:        rbac.KindTenant,
	Create:      rbac.KindTenant,
	Update:      rbac.KindTenant,
	Delete:      rbac.KindTenant,
	Tenanted:    true,
	SelfService: []rbac.Action{rbac.ActionRead},
	SelfList:    availableOnly,
}

// Handler serves the fleet catalogs, cars and the public car catalog.
type Handler struct {
	locations *mutation.Handler[Location, LocationInput]
	districts *mutation.Handler[District, DistrictInput]
	templates *mutation.Handler[CarTemplate, CarTemplateInput]
	cars      *mutation.Handler[Car, CarInput]

	carExec  *mutation.Executor[Car, CarInput]
	carStore *CarStore
	runner   database.Runner
}

func NewHandler(cars *CarStore, deps mutation.Deps) *Handler {
	carExec := mutation.New(CarPolicy, cars, deps)
	return &Handler{
		locations: mutation.NewHandler(mutation.New(globalPolicy("locations"), LocationStore{}, deps), "/api/v1/locations"),
		districts: mutation.NewHandler(mutation.New(globalPolicy("districts"), DistrictStore{}, deps), "/api/v1/districts"),
		templates: mutation.NewHandler(mutation.New(globalPolicy("car_templates"), TemplateStore{}, deps), "/api/v1/car-templates"),
		cars:      mutation.NewHandler(carExec, "/api/v1/cars"),
		carExec:   carExec,
		carStore:  cars,
		runner:    deps.Runner,
	}
}

// Cars exposes the car pipeline to packages acting on cars outside the
// database, such as image uploads.
func (h *Handler) Cars() *mutation.Executor[Car, CarInput] {
	return h.carExec
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, engine *rbac.Evaluator) {
	h.locations.RegisterRoutes(mux)
	h.districts.RegisterRoutes(mux)
	h.templates.RegisterRoutes(mux)
	h.cars.RegisterRoutes(mux)

	mux.Handle("GET /api/v1/catalog/cars",
		rbac.RequirePermission(engine, "catalog:read")(http.HandlerFunc(h.HandleCatalog)))
}

// HandleCatalog lists cars on offer within the caller's scope grouped by
// body type. An optional location_id narrows the result.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	scope, ok := rbac.ScopeFrom(r.Context())
	if !ok {
		api.WriteError(w, r, api.ErrUnauthenticated)
		return
	}

	var locationID *int64
	if raw := r.URL.Query().Get("location_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			api.WriteError(w, r, api.NewValidationError("location_id", "must be a positive integer"))
			return
		}
		locationID = &id
	}

	rs, err := h.carExec.Restriction(scope)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	var cars []Car
	err = h.runner.Run(r.Context(), scope.Session(), func(ctx context.Context, q database.Querier) error {
		var err error
		cars, err = h.carStore.ListAvailable(ctx, q, rs, locationID)
		return err
	})
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	api.WriteData(w, http.StatusOK, GroupByBodyType(cars))
}
