package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/middleware"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

const unknownRole = "unknown"

// IdentityLookup reloads the actor so the recorded role is never taken
// from the caller.
type IdentityLookup interface {
	GetIdentity(ctx context.Context, userID string) (*auth.Identity, error)
}

// TenantLookup finds the company an owner or manager acts for.
type TenantLookup interface {
	CompanyOf(ctx context.Context, identity *auth.Identity) (*int64, error)
}

// Recorder turns events into entries and hands them to a sink. It is
// best-effort: every failure is logged and counted, none is returned.
type Recorder struct {
	identities IdentityLookup
	tenants    TenantLookup
	sink       Sink
	metrics    *Metrics
}

func NewRecorder(identities IdentityLookup, tenants TenantLookup, sink Sink, metrics *Metrics) *Recorder {
	return &Recorder{identities: identities, tenants: tenants, sink: sink, metrics: metrics}
}

func (r *Recorder) Log(ctx context.Context, e Event) {
	entry := Entry{
		Role:       unknownRole,
		CompanyID:  e.CompanyID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
	}

	var err error
	if entry.BeforeState, err = marshalState(e.Before); err != nil {
		r.fail(ctx, "encode", e, err)
		return
	}
	if entry.AfterState, err = marshalState(e.After); err != nil {
		r.fail(ctx, "encode", e, err)
		return
	}

	actorID := e.ActorID
	if actorID == "" {
		if id := auth.GetIdentity(ctx); id != nil {
			actorID = id.UserID
		}
	}

	if actorID != "" {
		entry.UserID = &actorID
		actor, err := r.identities.GetIdentity(ctx, actorID)
		if err != nil {
			// Still record the event; the role is marked unknown.
			r.fail(ctx, "identity", e, err)
		} else {
			entry.Role = string(actor.Role)
			if entry.CompanyID == nil {
				entry.CompanyID = r.deriveTenant(ctx, actor, e)
			}
		}
	}

	client := middleware.GetClientInfo(ctx)
	entry.IP = client.IP
	entry.UserAgent = client.UserAgent

	// The request may be finishing; the write should not be canceled with it.
	if err := r.sink.Write(context.WithoutCancel(ctx), entry); err != nil {
		r.fail(ctx, "write", e, err)
		return
	}
	r.metrics.incRecorded(e.Action)
}

// deriveTenant: system admins record the impersonated company or none,
// owners and managers their own company, clients none.
func (r *Recorder) deriveTenant(ctx context.Context, actor *auth.Identity, e Event) *int64 {
	switch actor.Role {
	case auth.RoleSystemAdmin:
		return rbac.ImpersonatedCompany(ctx)
	case auth.RoleOwner, auth.RoleManager:
		company, err := r.tenants.CompanyOf(ctx, actor)
		if err != nil {
			r.fail(ctx, "tenant", e, err)
			return nil
		}
		return company
	default:
		return nil
	}
}

func (r *Recorder) fail(ctx context.Context, stage string, e Event, err error) {
	r.metrics.incFailure(stage)
	slog.ErrorContext(ctx, "audit record failed",
		"stage", stage,
		"action", e.Action,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
}

func marshalState(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
