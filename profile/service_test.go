package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketflow/auth"
	"marketflow/memstore"
	"marketflow/profile"
)

func TestUpsert_ReplacesProfile(t *testing.T) {
	svc := profile.NewService(memstore.New().Profiles())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, profile.Profile{UserID: "seller-1", Role: auth.RoleSeller, DisplayName: "Old Name"})
	require.NoError(t, err)
	blank := " "
	_, err = svc.Upsert(ctx, profile.Profile{UserID: "seller-1", Role: auth.RoleSeller, DisplayName: " New Name ", AvatarURL: &blank})
	require.NoError(t, err)

	got, err := svc.Get(ctx, auth.RoleSeller, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.DisplayName)
	assert.Nil(t, got.AvatarURL)

	_, err = svc.Get(ctx, auth.RoleBuyer, "seller-1")
	assert.ErrorIs(t, err, profile.ErrNotFound)
}

func TestUpsert_RejectsAdminAndBlankNames(t *testing.T) {
	svc := profile.NewService(memstore.New().Profiles())
	ctx := context.Background()

	_, err := svc.Upsert(ctx, profile.Profile{UserID: "admin-1", Role: auth.RoleAdmin, DisplayName: "Ops"})
	assert.ErrorIs(t, err, profile.ErrUnsupportedRole)

	_, err = svc.Upsert(ctx, profile.Profile{UserID: "buyer-1", Role: auth.RoleBuyer, DisplayName: ""})
	assert.Error(t, err)
}

func TestEnsure_CreatesOnlyWhenMissing(t *testing.T) {
	svc := profile.NewService(memstore.New().Profiles())
	ctx := context.Background()

	created, err := svc.Ensure(ctx, profile.Profile{UserID: "buyer-1", Role: auth.RoleBuyer, DisplayName: "Ana Cruz"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Cruz", created.DisplayName)

	_, err = svc.Upsert(ctx, profile.Profile{UserID: "buyer-1", Role: auth.RoleBuyer, DisplayName: "Ana C."})
	require.NoError(t, err)
	kept, err := svc.Ensure(ctx, profile.Profile{UserID: "buyer-1", Role: auth.RoleBuyer, DisplayName: "Ana Cruz"})
	require.NoError(t, err)
	assert.Equal(t, "Ana C.", kept.DisplayName, "an existing profile is not overwritten")

	_, err = svc.Ensure(ctx, profile.Profile{UserID: "admin-1", Role: auth.RoleAdmin, DisplayName: "Ops"})
	assert.ErrorIs(t, err, profile.ErrUnsupportedRole)
}
