package dashboard

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/booking"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
	"github.com/rentaldesk/rentaldesk/internal/task"
	"golang.org/x/sync/errgroup"
)

const listSize = 5

type Handler struct {
	runner    database.Runner
	stats     statsReader
	contracts contractReader
	tasks     taskReader
}

func NewHandler(runner database.Runner) *Handler {
	return &Handler{
		runner:    runner,
		stats:     StatsStore{},
		contracts: booking.ContractStore{},
		tasks:     task.Store{},
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, engine *rbac.Evaluator) {
	mux.Handle("GET /api/v1/dashboard",
		rbac.RequirePermission(engine, "dashboard:read")(http.HandlerFunc(h.HandleGet)))
}

// HandleGet runs the three reads concurrently, each on its own scoped
// connection, and fails as a whole if any of them fails.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	scope, ok := rbac.ScopeFrom(r.Context())
	if !ok {
		api.WriteError(w, r, api.ErrUnauthenticated)
		return
	}

	var rs api.Restriction
	switch scope.Kind {
	case rbac.KindSystem:
	case rbac.KindTenant:
		rs.CompanyID = scope.Company()
	default:
		api.WriteError(w, r, fmt.Errorf("%w: dashboard requires a company or system scope", api.ErrPermissionDenied))
		return
	}

	summary, err := h.load(r.Context(), scope, rs)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, summary)
}

func (h *Handler) load(ctx context.Context, scope rbac.Scope, rs api.Restriction) (Summary, error) {
	var s Summary
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return h.runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
			var err error
			s.Stats, err = h.stats.Stats(ctx, q, rs.CompanyID)
			return err
		})
	})
	g.Go(func() error {
		return h.runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
			var err error
			s.LatestContracts, err = h.contracts.Latest(ctx, q, rs, listSize)
			return err
		})
	})
	g.Go(func() error {
		return h.runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
			var err error
			s.OpenTasks, err = h.tasks.Open(ctx, q, rs, listSize)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}
