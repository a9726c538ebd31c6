package support_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketflow/memstore"
	"marketflow/support"
)

func TestResolve_OnlyOnce(t *testing.T) {
	svc := support.NewService(memstore.New().Tickets())
	ctx := context.Background()

	ticket, err := svc.Create(ctx, support.CreateParams{UserID: "buyer-1", Subject: " Package never arrived ", Body: "Order #12"})
	require.NoError(t, err)
	assert.Equal(t, support.StatusOpen, ticket.Status)
	assert.Equal(t, "Package never arrived", ticket.Subject)

	resolved, err := svc.Resolve(ctx, "admin-1", true, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, support.StatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	_, err = svc.Resolve(ctx, "admin-1", true, ticket.ID)
	assert.ErrorIs(t, err, support.ErrBadStatus)
}

func TestResolve_OwnerOrAdminOnly(t *testing.T) {
	svc := support.NewService(memstore.New().Tickets())
	ctx := context.Background()

	ticket, err := svc.Create(ctx, support.CreateParams{UserID: "buyer-1", Subject: "Refund"})
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, "buyer-2", false, ticket.ID)
	assert.ErrorIs(t, err, support.ErrForbidden)

	_, err = svc.Resolve(ctx, "buyer-1", false, ticket.ID)
	assert.NoError(t, err)

	_, err = svc.Resolve(ctx, "buyer-1", false, "missing")
	assert.ErrorIs(t, err, support.ErrNotFound)
}

func TestList_ScopesToCallerUnlessAdmin(t *testing.T) {
	svc := support.NewService(memstore.New().Tickets())
	ctx := context.Background()

	_, err := svc.Create(ctx, support.CreateParams{UserID: "buyer-1", Subject: "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, support.CreateParams{UserID: "seller-1", Subject: "B"})
	require.NoError(t, err)

	mine, err := svc.List(ctx, "buyer-1", false, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := svc.List(ctx, "admin-1", true, support.StatusOpen)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Create(ctx, support.CreateParams{UserID: "buyer-1", Subject: "  "})
	assert.Error(t, err)
}
