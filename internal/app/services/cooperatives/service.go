package cooperatives

import (
	"context"
	"fmt"
	"strings"

	"github.com/coopenergy/platform/internal/app/domain/cooperative"
	"github.com/coopenergy/platform/internal/app/domain/plant"
	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/validation"
	"github.com/coopenergy/platform/pkg/logger"
)

type CreateInput struct {
	Name string `json:"name" validate:"required,max=255"`
	Code string `json:"code" validate:"required,max=32"`
}

type CreatePlantInput struct {
	Name       string  `json:"name" validate:"required,max=255"`
	CapacityKW float64 `json:"capacity_kw" validate:"gte=0"`
	Location   string  `json:"location,omitempty" validate:"max=255"`
}

// Service manages cooperatives and their plants.
type Service struct {
	store  storage.CooperativeStore
	plants storage.PlantStore
	log    *logger.Logger
}

// New constructs a cooperative service.
func New(store storage.CooperativeStore, plants storage.PlantStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("cooperatives")
	}
	return &Service{store: store, plants: plants, log: log}
}

// Create registers a cooperative. Codes are unique regardless of case.
func (s *Service) Create(ctx context.Context, in CreateInput) (cooperative.Cooperative, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	if err := validation.Struct(in); err != nil {
		return cooperative.Cooperative{}, err
	}
	coop, err := s.store.CreateCooperative(ctx, cooperative.Cooperative{Name: in.Name, Code: in.Code})
	if err != nil {
		return cooperative.Cooperative{}, err
	}
	s.log.WithField("cooperative_id", coop.ID).
		WithField("code", coop.Code).
		Info("cooperative created")
	return coop, nil
}

func (s *Service) Get(ctx context.Context, id string) (cooperative.Cooperative, error) {
	return s.store.GetCooperative(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]cooperative.Cooperative, error) {
	return s.store.ListCooperatives(ctx)
}

// CreatePlant registers a plant under an existing cooperative.
func (s *Service) CreatePlant(ctx context.Context, cooperativeID string, in CreatePlantInput) (plant.Plant, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	if err := validation.Struct(in); err != nil {
		return plant.Plant{}, err
	}
	if _, err := s.store.GetCooperative(ctx, cooperativeID); err != nil {
		return plant.Plant{}, fmt.Errorf("cooperative validation failed: %w", err)
	}
	p, err := s.plants.CreatePlant(ctx, plant.Plant{
		CooperativeID: cooperativeID,
		Name:          in.Name,
		CapacityKW:    in.CapacityKW,
		Location:      in.Location,
	})
	if err != nil {
		return plant.Plant{}, err
	}
	s.log.WithField("plant_id", p.ID).
		WithField("cooperative_id", cooperativeID).
		Info("plant registered")
	return p, nil
}

// ListPlants lists the plants of an existing cooperative.
func (s *Service) ListPlants(ctx context.Context, cooperativeID string) ([]plant.Plant, error) {
	if _, err := s.store.GetCooperative(ctx, cooperativeID); err != nil {
		return nil, err
	}
	return s.plants.ListPlants(ctx, cooperativeID)
}
