package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/platform/database/dbtest"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
	"github.com/rentaldesk/rentaldesk/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func as(role auth.Role, scope rbac.Scope) context.Context {
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{UserID: scope.UserID, Role: role, Status: auth.StatusActive})
	return rbac.WithScope(ctx, scope)
}

func TestTasks_ScopedLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := dbtest.Setup(t)
	ctx := context.Background()

	owner := dbtest.SeedUser(t, pool, "owner@example.com", "owner")
	company := dbtest.SeedCompany(t, pool, "Rentals", owner)
	otherOwner := dbtest.SeedUser(t, pool, "other@example.com", "owner")
	other := dbtest.SeedCompany(t, pool, "Elsewhere", otherOwner)
	courier := dbtest.SeedUser(t, pool, "courier@example.com", "client")

	// A contract of the other company, to link against.
	var foreignContract int64
	require.NoError(t, pool.QueryRow(ctx, `
		WITH loc AS (INSERT INTO locations (name, country) VALUES ('Batumi', 'GE') RETURNING id),
		     tpl AS (INSERT INTO car_templates (brand, model, body_type, seats, doors, transmission, fuel_type)
		             VALUES ('Kia', 'Rio', 'sedan', 5, 4, 'manual', 'petrol') RETURNING id),
		     car AS (INSERT INTO cars (company_id, template_id, location_id, plate_number, year, pricing)
		             SELECT $1, tpl.id, loc.id, 'ZZ-1', 2020, '{}' FROM tpl, loc RETURNING id),
		     cl AS (INSERT INTO clients (company_id, full_name, phone) VALUES ($1, 'X', '1') RETURNING id)
		INSERT INTO contracts (company_id, car_id, client_id, start_date, end_date, total_amount)
		SELECT $1, car.id, cl.id, '2025-01-01', '2025-01-02', 10 FROM car, cl RETURNING id`, other,
	).Scan(&foreignContract))

	deps := mutation.Deps{Runner: database.NewPoolRunner(pool), Engine: rbac.DefaultEvaluator()}
	tasks := mutation.New(task.Policy, task.Store{}, deps)
	ownerCtx := as(auth.RoleOwner, rbac.Tenant(company, owner))

	due := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	deliver, err := tasks.Create(ownerCtx, task.Input{Title: "Deliver car", AssigneeID: &courier, DueAt: &due})
	require.NoError(t, err)
	assert.Equal(t, task.StatusTodo, deliver.Status)
	assert.Equal(t, company, deliver.CompanyID)
	_, err = tasks.Create(ownerCtx, task.Input{Title: "Wash fleet", Status: task.StatusDone})
	require.NoError(t, err)

	_, err = tasks.Create(ownerCtx, task.Input{Title: "Chase payment", ContractID: &foreignContract})
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "contract_id")

	open, err := task.Store{}.Open(ctx, pool, api.Restriction{CompanyID: &company}, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, deliver.ID, open[0].ID)

	courierCtx := as(auth.RoleClient, rbac.Self(courier))
	mine, total, err := tasks.List(courierCtx, api.ListParams{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Deliver car", mine[0].Title)

	_, err = tasks.Update(courierCtx, deliver.ID, task.Input{Title: "Deliver car", Status: task.StatusDone})
	assert.ErrorIs(t, err, api.ErrPermissionDenied)

	otherCtx := as(auth.RoleOwner, rbac.Tenant(other, otherOwner))
	_, err = tasks.Get(otherCtx, deliver.ID)
	assert.ErrorIs(t, err, api.ErrPermissionDenied)
}
