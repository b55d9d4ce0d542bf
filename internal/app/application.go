package app

import (
	"context"
	"fmt"

	"github.com/coopenergy/platform/internal/app/services/cooperatives"
	"github.com/coopenergy/platform/internal/app/services/flagscope"
	"github.com/coopenergy/platform/internal/app/services/plantconfigs"
	"github.com/coopenergy/platform/internal/app/services/plantgroups"
	"github.com/coopenergy/platform/internal/app/services/vendors"
	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/storage/memory"
	"github.com/coopenergy/platform/internal/app/system"
	"github.com/coopenergy/platform/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Cooperatives storage.CooperativeStore
	Plants       storage.PlantStore
	PlantConfigs storage.PlantConfigStore
	PlantGroups  storage.PlantGroupStore
	Vendors      storage.VendorStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Cooperatives *cooperatives.Service
	PlantConfigs *plantconfigs.Service
	PlantGroups  *plantgroups.Service
	Vendors      *vendors.Service
}

// New builds a fully initialised application with the provided stores. The
// flag options (retry runner, cache, recorder) are shared by every
// exclusive-flag service.
func New(stores Stores, log *logger.Logger, opts ...flagscope.Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Cooperatives == nil {
		stores.Cooperatives = mem
	}
	if stores.Plants == nil {
		stores.Plants = mem
	}
	if stores.PlantConfigs == nil {
		stores.PlantConfigs = mem
	}
	if stores.PlantGroups == nil {
		stores.PlantGroups = mem
	}
	if stores.Vendors == nil {
		stores.Vendors = mem
	}

	return &Application{
		manager:      system.NewManager(),
		log:          log,
		Cooperatives: cooperatives.New(stores.Cooperatives, stores.Plants, log),
		PlantConfigs: plantconfigs.New(stores.Cooperatives, stores.Plants, stores.PlantConfigs, log, opts...),
		PlantGroups:  plantgroups.New(stores.Cooperatives, stores.PlantGroups, log, opts...),
		Vendors:      vendors.New(stores.Vendors, log, opts...),
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	if err := a.manager.Register(service); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	return nil
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
