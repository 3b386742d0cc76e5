// Package testutil provides request and context helpers shared by tests.
package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "docket/pkg/domain"
	"docket/pkg/requestcontext"
)

// NewActor returns a context carrying an authenticated actor, simulating what
// the auth middleware does for real requests.
func NewActor(tenantID id.TenantID, userID id.UserID, role string) context.Context {
	return requestcontext.WithActor(context.Background(), requestcontext.ActorContext{
		UserID:    userID,
		UserEmail: "test@example.com",
		Role:      role,
		TenantID:  tenantID,
	})
}

// NewAttorney returns an actor context with a fresh user in the given tenant.
func NewAttorney(tenantID id.TenantID) context.Context {
	return NewActor(tenantID, id.UserID(uuid.New()), requestcontext.RoleAttorney)
}

// NewAdmin returns an admin actor context with a fresh user in the given
// tenant.
func NewAdmin(tenantID id.TenantID) context.Context {
	return NewActor(tenantID, id.UserID(uuid.New()), requestcontext.RoleAdmin)
}

// WithFixedTime pins the request clock so hashes and timestamps are
// reproducible.
func WithFixedTime(ctx context.Context, at time.Time) context.Context {
	return requestcontext.WithTime(ctx, at)
}
