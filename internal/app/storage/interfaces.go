package storage

import (
	"context"

	"github.com/coopenergy/platform/internal/app/domain/cooperative"
	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plant"
	"github.com/coopenergy/platform/internal/app/domain/plantconfig"
	"github.com/coopenergy/platform/internal/app/domain/plantgroup"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
)

// CooperativeStore persists cooperatives.
type CooperativeStore interface {
	CreateCooperative(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error)
	GetCooperative(ctx context.Context, id string) (cooperative.Cooperative, error)
	ListCooperatives(ctx context.Context) ([]cooperative.Cooperative, error)
}

// PlantStore persists plants.
type PlantStore interface {
	CreatePlant(ctx context.Context, p plant.Plant) (plant.Plant, error)
	GetPlant(ctx context.Context, id string) (plant.Plant, error)
	ListPlants(ctx context.Context, cooperativeID string) ([]plant.Plant, error)
}

// PlantConfigStore persists plant configurations. The default flag is only
// changed through CreatePlantConfig, SetDefaultPlantConfig and
// RemoveDefaultPlantConfig; each runs in its own transaction.
type PlantConfigStore interface {
	CreatePlantConfig(ctx context.Context, cfg plantconfig.Config) (plantconfig.Config, error)
	UpdatePlantConfig(ctx context.Context, cfg plantconfig.Config) (plantconfig.Config, error)
	GetPlantConfig(ctx context.Context, id string) (plantconfig.Config, error)
	ListPlantConfigs(ctx context.Context, cooperativeID string) ([]plantconfig.Config, error)
	DeletePlantConfig(ctx context.Context, id string) error

	SetDefaultPlantConfig(ctx context.Context, id string) (plantconfig.Config, error)
	RemoveDefaultPlantConfig(ctx context.Context, id string) (plantconfig.Config, error)
	TogglePlantConfigActive(ctx context.Context, id string) (plantconfig.Config, error)
	GetDefaultPlantConfig(ctx context.Context, cooperativeID string) (plantconfig.Config, error)
	PlantConfigStatistics(ctx context.Context, cooperativeID string) (exclusive.Statistics, error)
}

// PlantGroupStore persists plant groups.
type PlantGroupStore interface {
	CreatePlantGroup(ctx context.Context, grp plantgroup.Group) (plantgroup.Group, error)
	UpdatePlantGroup(ctx context.Context, grp plantgroup.Group) (plantgroup.Group, error)
	GetPlantGroup(ctx context.Context, id string) (plantgroup.Group, error)
	ListPlantGroups(ctx context.Context, cooperativeID string) ([]plantgroup.Group, error)
	DeletePlantGroup(ctx context.Context, id string) error

	SetDefaultPlantGroup(ctx context.Context, id string) (plantgroup.Group, error)
	RemoveDefaultPlantGroup(ctx context.Context, id string) (plantgroup.Group, error)
	TogglePlantGroupActive(ctx context.Context, id string) (plantgroup.Group, error)
	GetDefaultPlantGroup(ctx context.Context, cooperativeID string) (plantgroup.Group, error)
	PlantGroupStatistics(ctx context.Context, cooperativeID string) (exclusive.Statistics, error)
}

// VendorStore persists vendors. The preferred flag is exclusive per category.
type VendorStore interface {
	CreateVendor(ctx context.Context, v vendor.Vendor) (vendor.Vendor, error)
	UpdateVendor(ctx context.Context, v vendor.Vendor) (vendor.Vendor, error)
	GetVendor(ctx context.Context, id string) (vendor.Vendor, error)
	ListVendors(ctx context.Context, category string) ([]vendor.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error

	SetPreferredVendor(ctx context.Context, id string) (vendor.Vendor, error)
	RemovePreferredVendor(ctx context.Context, id string) (vendor.Vendor, error)
	ToggleVendorActive(ctx context.Context, id string) (vendor.Vendor, error)
	SetVendorVerified(ctx context.Context, id string, verified bool) (vendor.Vendor, error)
	GetPreferredVendor(ctx context.Context, category string) (vendor.Vendor, error)
	VendorStatistics(ctx context.Context, category string) (exclusive.Statistics, error)
}
