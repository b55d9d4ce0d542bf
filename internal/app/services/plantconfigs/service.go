package plantconfigs

import (
	"context"
	"fmt"
	"strings"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plantconfig"
	"github.com/coopenergy/platform/internal/app/services/flagscope"
	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/validation"
	"github.com/coopenergy/platform/internal/errors"
	"github.com/coopenergy/platform/pkg/logger"
)

// Kind labels plant configuration operations in metrics, logs and cache keys.
const Kind = "plant_config"

// CreateInput describes a new plant configuration.
type CreateInput struct {
	CooperativeID string                 `json:"cooperative_id" validate:"required"`
	PlantID       string                 `json:"plant_id" validate:"required"`
	Name          string                 `json:"name" validate:"required,max=255"`
	Settings      map[string]interface{} `json:"settings,omitempty"`
	IsActive      *bool                  `json:"is_active,omitempty"`
	IsDefault     bool                   `json:"is_default"`
}

// UpdateInput carries the fields a generic update may change. The default
// flag is not among them.
type UpdateInput struct {
	Name     string                 `json:"name" validate:"required,max=255"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// Service manages plant configurations and the default configuration of each
// cooperative.
type Service struct {
	cooperatives storage.CooperativeStore
	plants       storage.PlantStore
	store        storage.PlantConfigStore
	ops          *flagscope.Ops
	log          *logger.Logger
}

// New constructs a plant configuration service.
func New(cooperatives storage.CooperativeStore, plants storage.PlantStore, store storage.PlantConfigStore, log *logger.Logger, opts ...flagscope.Option) *Service {
	if log == nil {
		log = logger.NewDefault("plantconfigs")
	}
	return &Service{
		cooperatives: cooperatives,
		plants:       plants,
		store:        store,
		ops:          flagscope.New(Kind, log, opts...),
		log:          log,
	}
}

// Create validates references and stores the configuration. When IsDefault
// is set the new row becomes the cooperative's default in the same
// transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (plantconfig.Config, error) {
	in.CooperativeID = strings.TrimSpace(in.CooperativeID)
	in.PlantID = strings.TrimSpace(in.PlantID)
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return plantconfig.Config{}, err
	}

	if _, err := s.cooperatives.GetCooperative(ctx, in.CooperativeID); err != nil {
		return plantconfig.Config{}, fmt.Errorf("cooperative validation failed: %w", err)
	}
	p, err := s.plants.GetPlant(ctx, in.PlantID)
	if err != nil {
		return plantconfig.Config{}, fmt.Errorf("plant validation failed: %w", err)
	}
	if p.CooperativeID != in.CooperativeID {
		return plantconfig.Config{}, errors.Validation(
			fmt.Sprintf("plant %s does not belong to cooperative %s", p.ID, in.CooperativeID), nil)
	}

	cfg := plantconfig.Config{
		CooperativeID: in.CooperativeID,
		PlantID:       in.PlantID,
		Name:          in.Name,
		Settings:      plantconfig.Settings(in.Settings),
		IsActive:      in.IsActive == nil || *in.IsActive,
		IsDefault:     in.IsDefault,
	}
	return flagscope.Mutate(ctx, s.ops, "create", in.PlantID, func(ctx context.Context) (plantconfig.Config, error) {
		return s.store.CreatePlantConfig(ctx, cfg)
	}, scopeOf)
}

// Update changes name and settings.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (plantconfig.Config, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return plantconfig.Config{}, err
	}
	updated, err := s.store.UpdatePlantConfig(ctx, plantconfig.Config{
		ID:       id,
		Name:     in.Name,
		Settings: plantconfig.Settings(in.Settings),
	})
	if err != nil {
		return plantconfig.Config{}, err
	}
	s.log.WithField("plant_config_id", id).Info("plant config updated")
	return updated, nil
}

// Get returns one configuration.
func (s *Service) Get(ctx context.Context, id string) (plantconfig.Config, error) {
	return s.store.GetPlantConfig(ctx, id)
}

// List returns the live configurations of a cooperative, or of every
// cooperative when cooperativeID is empty.
func (s *Service) List(ctx context.Context, cooperativeID string) ([]plantconfig.Config, error) {
	return s.store.ListPlantConfigs(ctx, strings.TrimSpace(cooperativeID))
}

// Delete soft-deletes a configuration. Deleting the default leaves the
// cooperative without one.
func (s *Service) Delete(ctx context.Context, id string) error {
	cfg, err := s.store.GetPlantConfig(ctx, id)
	if err != nil {
		return err
	}
	_, err = flagscope.Mutate(ctx, s.ops, "delete", id, func(ctx context.Context) (plantconfig.Config, error) {
		return cfg, s.store.DeletePlantConfig(ctx, id)
	}, scopeOf)
	return err
}

// SetAsDefault makes the configuration the single default of its
// cooperative.
func (s *Service) SetAsDefault(ctx context.Context, id string) (plantconfig.Config, error) {
	return flagscope.Mutate(ctx, s.ops, "promote", id, func(ctx context.Context) (plantconfig.Config, error) {
		return s.store.SetDefaultPlantConfig(ctx, id)
	}, scopeOf)
}

// RemoveDefault clears the default flag of the configuration.
func (s *Service) RemoveDefault(ctx context.Context, id string) (plantconfig.Config, error) {
	return flagscope.Mutate(ctx, s.ops, "demote", id, func(ctx context.Context) (plantconfig.Config, error) {
		return s.store.RemoveDefaultPlantConfig(ctx, id)
	}, scopeOf)
}

// ToggleActive flips the active flag. The default configuration must be
// demoted first.
func (s *Service) ToggleActive(ctx context.Context, id string) (plantconfig.Config, error) {
	return flagscope.Mutate(ctx, s.ops, "toggle_active", id, func(ctx context.Context) (plantconfig.Config, error) {
		return s.store.TogglePlantConfigActive(ctx, id)
	}, scopeOf)
}

// GetDefault returns the active default configuration of a cooperative.
func (s *Service) GetDefault(ctx context.Context, cooperativeID string) (plantconfig.Config, error) {
	cooperativeID = strings.TrimSpace(cooperativeID)
	return flagscope.Holder(ctx, s.ops, cooperativeID,
		s.store.GetPlantConfig,
		func(c plantconfig.Config) bool {
			return c.CooperativeID == cooperativeID && c.IsDefault && c.IsActive
		},
		s.store.GetDefaultPlantConfig,
		func(c plantconfig.Config) string { return c.ID },
	)
}

// Statistics summarises the configurations of a cooperative.
func (s *Service) Statistics(ctx context.Context, cooperativeID string) (exclusive.Statistics, error) {
	cooperativeID = strings.TrimSpace(cooperativeID)
	if cooperativeID == "" {
		return exclusive.Statistics{}, errors.Validation("cooperative_id is required", nil)
	}
	return s.store.PlantConfigStatistics(ctx, cooperativeID)
}

func scopeOf(c plantconfig.Config) string { return c.CooperativeID }
