package plantgroups

import (
	"context"
	"fmt"
	"strings"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plantgroup"
	"github.com/coopenergy/platform/internal/app/services/flagscope"
	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/validation"
	"github.com/coopenergy/platform/internal/errors"
	"github.com/coopenergy/platform/pkg/logger"
)

const Kind = "plant_group"

type CreateInput struct {
	CooperativeID string `json:"cooperative_id" validate:"required"`
	Name          string `json:"name" validate:"required,max=255"`
	Description   string `json:"description,omitempty" validate:"max=2000"`
	IsActive      *bool  `json:"is_active,omitempty"`
	IsDefault     bool   `json:"is_default"`
}

// UpdateInput renames a group or changes its description. An empty name
// keeps the current one.
type UpdateInput struct {
	Name        string `json:"name,omitempty" validate:"max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// Service manages plant groups. Group names are unique per cooperative,
// compared case-insensitively, and each cooperative has at most one default
// group.
type Service struct {
	cooperatives storage.CooperativeStore
	store        storage.PlantGroupStore
	ops          *flagscope.Ops
	log          *logger.Logger
}

func New(cooperatives storage.CooperativeStore, store storage.PlantGroupStore, log *logger.Logger, opts ...flagscope.Option) *Service {
	if log == nil {
		log = logger.NewDefault("plantgroups")
	}
	return &Service{
		cooperatives: cooperatives,
		store:        store,
		ops:          flagscope.New(Kind, log, opts...),
		log:          log,
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (plantgroup.Group, error) {
	in.CooperativeID = strings.TrimSpace(in.CooperativeID)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return plantgroup.Group{}, err
	}
	if _, err := s.cooperatives.GetCooperative(ctx, in.CooperativeID); err != nil {
		return plantgroup.Group{}, fmt.Errorf("cooperative validation failed: %w", err)
	}

	grp := plantgroup.Group{
		CooperativeID: in.CooperativeID,
		Name:          in.Name,
		Description:   in.Description,
		IsActive:      in.IsActive == nil || *in.IsActive,
		IsDefault:     in.IsDefault,
	}
	return flagscope.Mutate(ctx, s.ops, "create", in.Name, func(ctx context.Context) (plantgroup.Group, error) {
		return s.store.CreatePlantGroup(ctx, grp)
	}, scopeOf)
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (plantgroup.Group, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := validation.Struct(in); err != nil {
		return plantgroup.Group{}, err
	}
	updated, err := s.store.UpdatePlantGroup(ctx, plantgroup.Group{ID: id, Name: in.Name, Description: in.Description})
	if err != nil {
		return plantgroup.Group{}, err
	}
	s.log.WithField("plant_group_id", id).Info("plant group updated")
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (plantgroup.Group, error) {
	return s.store.GetPlantGroup(ctx, id)
}

func (s *Service) List(ctx context.Context, cooperativeID string) ([]plantgroup.Group, error) {
	return s.store.ListPlantGroups(ctx, strings.TrimSpace(cooperativeID))
}

func (s *Service) Delete(ctx context.Context, id string) error {
	grp, err := s.store.GetPlantGroup(ctx, id)
	if err != nil {
		return err
	}
	_, err = flagscope.Mutate(ctx, s.ops, "delete", id, func(ctx context.Context) (plantgroup.Group, error) {
		return grp, s.store.DeletePlantGroup(ctx, id)
	}, scopeOf)
	return err
}

func (s *Service) SetAsDefault(ctx context.Context, id string) (plantgroup.Group, error) {
	return flagscope.Mutate(ctx, s.ops, "promote", id, func(ctx context.Context) (plantgroup.Group, error) {
		return s.store.SetDefaultPlantGroup(ctx, id)
	}, scopeOf)
}

func (s *Service) RemoveDefault(ctx context.Context, id string) (plantgroup.Group, error) {
	return flagscope.Mutate(ctx, s.ops, "demote", id, func(ctx context.Context) (plantgroup.Group, error) {
		return s.store.RemoveDefaultPlantGroup(ctx, id)
	}, scopeOf)
}

func (s *Service) ToggleActive(ctx context.Context, id string) (plantgroup.Group, error) {
	return flagscope.Mutate(ctx, s.ops, "toggle_active", id, func(ctx context.Context) (plantgroup.Group, error) {
		return s.store.TogglePlantGroupActive(ctx, id)
	}, scopeOf)
}

func (s *Service) GetDefault(ctx context.Context, cooperativeID string) (plantgroup.Group, error) {
	cooperativeID = strings.TrimSpace(cooperativeID)
	return flagscope.Holder(ctx, s.ops, cooperativeID,
		s.store.GetPlantGroup,
		func(g plantgroup.Group) bool {
			return g.CooperativeID == cooperativeID && g.IsDefault && g.IsActive
		},
		s.store.GetDefaultPlantGroup,
		func(g plantgroup.Group) string { return g.ID },
	)
}

func (s *Service) Statistics(ctx context.Context, cooperativeID string) (exclusive.Statistics, error) {
	cooperativeID = strings.TrimSpace(cooperativeID)
	if cooperativeID == "" {
		return exclusive.Statistics{}, errors.Validation("cooperative_id is required", nil)
	}
	return s.store.PlantGroupStatistics(ctx, cooperativeID)
}

func scopeOf(g plantgroup.Group) string { return g.CooperativeID }
