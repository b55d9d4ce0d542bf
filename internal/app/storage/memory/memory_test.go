package memory

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopenergy/platform/internal/app/domain/plantconfig"
	"github.com/coopenergy/platform/internal/app/domain/plantgroup"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
	"github.com/coopenergy/platform/internal/app/storage"
)

func seedConfigs(t *testing.T, store *Store, coop string, plants ...string) []plantconfig.Config {
	t.Helper()
	out := make([]plantconfig.Config, 0, len(plants))
	for _, p := range plants {
		cfg, err := store.CreatePlantConfig(context.Background(), plantconfig.Config{
			CooperativeID: coop,
			PlantID:       p,
			Name:          "cfg-" + p,
			IsActive:      true,
		})
		require.NoError(t, err)
		out = append(out, cfg)
	}
	return out
}

func defaultsIn(t *testing.T, store *Store, coop string) []string {
	t.Helper()
	list, err := store.ListPlantConfigs(context.Background(), coop)
	require.NoError(t, err)
	var ids []string
	for _, cfg := range list {
		if cfg.IsDefault {
			ids = append(ids, cfg.ID)
		}
	}
	return ids
}

func TestPromoteMovesDefault(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2")

	_, err := store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)

	promoted, err := store.SetDefaultPlantConfig(ctx, cfgs[1].ID)
	require.NoError(t, err)
	assert.True(t, promoted.IsDefault)

	first, err := store.GetPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)
	assert.False(t, first.IsDefault)
	assert.Equal(t, []string{cfgs[1].ID}, defaultsIn(t, store, "C1"))
}

func TestPromoteSequenceKeepsSingleDefault(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2", "P3", "P4", "P5")

	assert.Empty(t, defaultsIn(t, store, "C1"))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		target := cfgs[rng.Intn(len(cfgs))]
		_, err := store.SetDefaultPlantConfig(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{target.ID}, defaultsIn(t, store, "C1"))
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2")

	_, err := store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)
	once := defaultsIn(t, store, "C1")

	_, err = store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, once, defaultsIn(t, store, "C1"))
}

func TestPromoteDoesNotCrossScopes(t *testing.T) {
	ctx := context.Background()
	store := New()
	a := seedConfigs(t, store, "A", "P1", "P2")
	b := seedConfigs(t, store, "B", "P1", "P2")

	_, err := store.SetDefaultPlantConfig(ctx, b[1].ID)
	require.NoError(t, err)
	_, err = store.SetDefaultPlantConfig(ctx, a[0].ID)
	require.NoError(t, err)
	_, err = store.SetDefaultPlantConfig(ctx, a[1].ID)
	require.NoError(t, err)

	assert.Equal(t, []string{b[1].ID}, defaultsIn(t, store, "B"))
	assert.Equal(t, []string{a[1].ID}, defaultsIn(t, store, "A"))
}

func TestDemoteHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2")

	_, err := store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)

	demoted, err := store.RemoveDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)
	assert.False(t, demoted.IsDefault)
	assert.Empty(t, defaultsIn(t, store, "C1"))

	// demoting a non-default row is a no-op on the flag
	_, err = store.RemoveDefaultPlantConfig(ctx, cfgs[1].ID)
	require.NoError(t, err)
	assert.Empty(t, defaultsIn(t, store, "C1"))
}

func TestToggleActiveProtectsDefault(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2")

	_, err := store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)

	_, err = store.TogglePlantConfigActive(ctx, cfgs[0].ID)
	require.ErrorIs(t, err, storage.ErrProtectedState)

	unchanged, err := store.GetPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)
	assert.True(t, unchanged.IsActive)

	toggled, err := store.TogglePlantConfigActive(ctx, cfgs[1].ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)
}

func TestCreateRejectsDuplicatePair(t *testing.T) {
	ctx := context.Background()
	store := New()
	seedConfigs(t, store, "C1", "P1")

	_, err := store.CreatePlantConfig(ctx, plantconfig.Config{CooperativeID: "C1", PlantID: "P1", IsActive: true})
	require.ErrorIs(t, err, storage.ErrDuplicate)

	list, err := store.ListPlantConfigs(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// the same plant under another cooperative is fine
	_, err = store.CreatePlantConfig(ctx, plantconfig.Config{CooperativeID: "C2", PlantID: "P1", IsActive: true})
	require.NoError(t, err)
}

func TestCreateWithDefaultDemotesExisting(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1")
	_, err := store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)

	created, err := store.CreatePlantConfig(ctx, plantconfig.Config{CooperativeID: "C1", PlantID: "P3", IsActive: true, IsDefault: true})
	require.NoError(t, err)
	assert.True(t, created.IsDefault)
	assert.Equal(t, []string{created.ID}, defaultsIn(t, store, "C1"))
}

func TestDeleteLeavesScopeWithoutDefault(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2")
	_, err := store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.NoError(t, err)

	require.NoError(t, store.DeletePlantConfig(ctx, cfgs[0].ID))
	assert.Empty(t, defaultsIn(t, store, "C1"))

	_, err = store.GetDefaultPlantConfig(ctx, "C1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// soft-deleted rows are not promotion targets
	_, err = store.SetDefaultPlantConfig(ctx, cfgs[0].ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// the pair is free again once the row is deleted
	_, err = store.CreatePlantConfig(ctx, plantconfig.Config{CooperativeID: "C1", PlantID: "P1", IsActive: true})
	require.NoError(t, err)
}

func TestConcurrentPromotionsPickOneWinner(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2", "P3", "P4")

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.SetDefaultPlantConfig(ctx, cfgs[i%len(cfgs)].ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, defaultsIn(t, store, "C1"), 1)
}

func TestMissingRows(t *testing.T) {
	ctx := context.Background()
	store := New()

	_, err := store.SetDefaultPlantConfig(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.RemoveDefaultPlantConfig(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.TogglePlantConfigActive(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	store := New()
	cfgs := seedConfigs(t, store, "C1", "P1", "P2", "P3")
	_, err := store.SetDefaultPlantConfig(ctx, cfgs[2].ID)
	require.NoError(t, err)
	_, err = store.TogglePlantConfigActive(ctx, cfgs[0].ID)
	require.NoError(t, err)

	stats, err := store.PlantConfigStatistics(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 1, stats.Inactive)
	assert.True(t, stats.HasDefault)
	assert.Equal(t, cfgs[2].ID, stats.DefaultID)
}

func TestPlantGroupNamesAreCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := New()

	first, err := store.CreatePlantGroup(ctx, plantgroup.Group{CooperativeID: "C1", Name: "North", IsActive: true, IsDefault: true})
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	_, err = store.CreatePlantGroup(ctx, plantgroup.Group{CooperativeID: "C1", Name: "north", IsActive: true})
	require.ErrorIs(t, err, storage.ErrDuplicate)

	second, err := store.CreatePlantGroup(ctx, plantgroup.Group{CooperativeID: "C1", Name: "South", IsActive: true})
	require.NoError(t, err)

	_, err = store.UpdatePlantGroup(ctx, plantgroup.Group{ID: second.ID, Name: "NORTH"})
	require.ErrorIs(t, err, storage.ErrDuplicate)

	def, err := store.GetDefaultPlantGroup(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, def.ID)
}

func TestPlantGroupCaseOnlyRename(t *testing.T) {
	ctx := context.Background()
	store := New()

	grp, err := store.CreatePlantGroup(ctx, plantgroup.Group{CooperativeID: "C1", Name: "North", IsActive: true})
	require.NoError(t, err)

	renamed, err := store.UpdatePlantGroup(ctx, plantgroup.Group{ID: grp.ID, Name: "NORTH"})
	require.NoError(t, err)
	assert.Equal(t, "NORTH", renamed.Name)

	got, err := store.GetPlantGroup(ctx, grp.ID)
	require.NoError(t, err)
	assert.Equal(t, "NORTH", got.Name)
}

func TestPlantConfigSettingsAreNotShared(t *testing.T) {
	ctx := context.Background()
	store := New()

	cfg, err := store.CreatePlantConfig(ctx, plantconfig.Config{
		CooperativeID: "C1",
		PlantID:       "P1",
		IsActive:      true,
		Settings: plantconfig.Settings{
			"limits": map[string]any{"k": float64(1)},
			"phases": []any{"a", map[string]any{"n": float64(2)}},
		},
	})
	require.NoError(t, err)

	got, err := store.GetPlantConfig(ctx, cfg.ID)
	require.NoError(t, err)
	got.Settings["limits"].(map[string]any)["k"] = float64(99)
	got.Settings["phases"].([]any)[1].(map[string]any)["n"] = float64(99)

	again, err := store.GetPlantConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1), again.Settings["limits"].(map[string]any)["k"])
	assert.Equal(t, float64(2), again.Settings["phases"].([]any)[1].(map[string]any)["n"])
}

func TestPreferredVendorRules(t *testing.T) {
	ctx := context.Background()
	store := New()

	unverified, err := store.CreateVendor(ctx, vendor.Vendor{Category: "inverters", RegistrationNumber: "R-1", Name: "Volt", IsActive: true})
	require.NoError(t, err)

	_, err = store.SetPreferredVendor(ctx, unverified.ID)
	require.ErrorIs(t, err, storage.ErrProtectedState)

	_, err = store.CreateVendor(ctx, vendor.Vendor{Category: "inverters", RegistrationNumber: "R-2", Name: "Amp", IsActive: true, IsPreferred: true})
	require.ErrorIs(t, err, storage.ErrProtectedState)
	list, err := store.ListVendors(ctx, "inverters")
	require.NoError(t, err)
	assert.Len(t, list, 1, "rejected preferred create must not insert")

	verified, err := store.SetVendorVerified(ctx, unverified.ID, true)
	require.NoError(t, err)
	preferred, err := store.SetPreferredVendor(ctx, verified.ID)
	require.NoError(t, err)
	assert.True(t, preferred.IsPreferred)

	_, err = store.SetVendorVerified(ctx, preferred.ID, false)
	require.ErrorIs(t, err, storage.ErrProtectedState)
	_, err = store.ToggleVendorActive(ctx, preferred.ID)
	require.ErrorIs(t, err, storage.ErrProtectedState)

	other, err := store.CreateVendor(ctx, vendor.Vendor{Category: "panels", RegistrationNumber: "R-1", Name: "Sun", IsActive: true, IsVerified: true, IsPreferred: true})
	require.NoError(t, err)

	got, err := store.GetPreferredVendor(ctx, "inverters")
	require.NoError(t, err)
	assert.Equal(t, preferred.ID, got.ID)
	got, err = store.GetPreferredVendor(ctx, "panels")
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.ID)
}

func TestErrorsNameTheRecord(t *testing.T) {
	store := New()
	_, err := store.GetVendor(context.Background(), "42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Contains(t, err.Error(), fmt.Sprintf("vendor %s", "42"))
}
