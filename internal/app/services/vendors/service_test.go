package vendors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/storage/memory"
	"github.com/coopenergy/platform/internal/errors"
)

func verified(reg string) CreateInput {
	return CreateInput{
		Category:           "inverters",
		RegistrationNumber: reg,
		Name:               "Vendor " + reg,
		Email:              "sales@" + reg + ".example",
		IsVerified:         true,
	}
}

func TestCreatePreferredRequiresVerifiedAndActive(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	in := verified("r1")
	in.IsVerified = false
	in.IsPreferred = true
	_, err := svc.Create(ctx, in)
	svcErr := errors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, errors.CodeValidation, svcErr.Code)
	assert.Contains(t, svcErr.Message, "is_verified must be true for a preferred vendor")
	fields, ok := svcErr.Details["fields"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "required_for_preferred", fields[0]["tag"])

	inactive := false
	in = verified("r1")
	in.IsActive = &inactive
	in.IsPreferred = true
	_, err = svc.Create(ctx, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is_active must be true for a preferred vendor")

	in = verified("r1")
	in.IsPreferred = true
	v, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.True(t, v.IsPreferred)
}

func TestCreateValidatesFields(t *testing.T) {
	svc := New(memory.New(), nil)
	rating := 6.0
	in := verified("r1")
	in.Email = "not-an-email"
	in.Website = "nope"
	in.Rating = &rating

	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	msg := errors.GetServiceError(err).Message
	assert.Contains(t, msg, "email")
	assert.Contains(t, msg, "website")
	assert.Contains(t, msg, "rating")
}

func TestPreferredRules(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, verified("a"))
	require.NoError(t, err)
	unverified := verified("b")
	unverified.IsVerified = false
	b, err := svc.Create(ctx, unverified)
	require.NoError(t, err)

	_, err = svc.SetAsPreferred(ctx, b.ID)
	require.ErrorIs(t, err, storage.ErrProtectedState)

	_, err = svc.SetVerified(ctx, b.ID, true)
	require.NoError(t, err)
	_, err = svc.SetAsPreferred(ctx, a.ID)
	require.NoError(t, err)
	b, err = svc.SetAsPreferred(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, b.IsPreferred)

	a, err = svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, a.IsPreferred)

	_, err = svc.ToggleActive(ctx, b.ID)
	require.ErrorIs(t, err, storage.ErrProtectedState)
	_, err = svc.SetVerified(ctx, b.ID, false)
	require.ErrorIs(t, err, storage.ErrProtectedState)

	pref, err := svc.GetPreferred(ctx, "inverters")
	require.NoError(t, err)
	assert.Equal(t, b.ID, pref.ID)

	_, err = svc.RemovePreferred(ctx, b.ID)
	require.NoError(t, err)
	_, err = svc.GetPreferred(ctx, "inverters")
	require.ErrorIs(t, err, storage.ErrNotFound)

	b, err = svc.ToggleActive(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, b.IsActive)
	_, err = svc.SetAsPreferred(ctx, b.ID)
	require.ErrorIs(t, err, storage.ErrProtectedState)
}

func TestCategoriesAreIndependent(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	inv, err := svc.Create(ctx, verified("x"))
	require.NoError(t, err)
	panel := verified("x")
	panel.Category = "panels"
	pnl, err := svc.Create(ctx, panel)
	require.NoError(t, err, "registration numbers only need to be unique per category")

	_, err = svc.SetAsPreferred(ctx, inv.ID)
	require.NoError(t, err)
	_, err = svc.SetAsPreferred(ctx, pnl.ID)
	require.NoError(t, err)

	inv, err = svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.IsPreferred)

	_, err = svc.Create(ctx, verified("x"))
	require.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestUpdateKeepsFlags(t *testing.T) {
	svc := New(memory.New(), nil)
	ctx := context.Background()

	in := verified("u")
	in.IsPreferred = true
	v, err := svc.Create(ctx, in)
	require.NoError(t, err)

	rating := 4.0
	updated, err := svc.Update(ctx, v.ID, UpdateInput{Name: "Renamed", Website: "https://u.example", Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.IsPreferred)
	require.NotNil(t, updated.Rating)
	assert.InDelta(t, 4.0, *updated.Rating, 0.001)
}
