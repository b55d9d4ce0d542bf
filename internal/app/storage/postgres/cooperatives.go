package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/coopenergy/platform/internal/app/domain/cooperative"
	"github.com/coopenergy/platform/internal/app/domain/plant"
)

const cooperativeColumns = `id, name, code, created_at, updated_at`

func (s *Store) CreateCooperative(ctx context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	if coop.ID == "" {
		coop.ID = uuid.NewString()
	}
	coop.Code = strings.TrimSpace(coop.Code)
	now := s.now()
	coop.CreatedAt = now
	coop.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooperatives (id, name, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, coop.ID, coop.Name, coop.Code, coop.CreatedAt, coop.UpdatedAt)
	if err != nil {
		return cooperative.Cooperative{}, classify(err)
	}
	return coop, nil
}

func (s *Store) GetCooperative(ctx context.Context, id string) (cooperative.Cooperative, error) {
	var coop cooperative.Cooperative
	err := s.db.GetContext(ctx, &coop, `SELECT `+cooperativeColumns+` FROM cooperatives WHERE id = $1`, id)
	if err != nil {
		return cooperative.Cooperative{}, notFound("cooperative", id, err)
	}
	return coop, nil
}

func (s *Store) ListCooperatives(ctx context.Context) ([]cooperative.Cooperative, error) {
	result := make([]cooperative.Cooperative, 0)
	err := s.db.SelectContext(ctx, &result, `SELECT `+cooperativeColumns+` FROM cooperatives ORDER BY created_at, id`)
	return result, err
}

const plantColumns = `id, cooperative_id, name, capacity_kw, location, created_at, updated_at`

func (s *Store) CreatePlant(ctx context.Context, p plant.Plant) (plant.Plant, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plants (id, cooperative_id, name, capacity_kw, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.CooperativeID, p.Name, p.CapacityKW, p.Location, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return plant.Plant{}, classify(err)
	}
	return p, nil
}

func (s *Store) GetPlant(ctx context.Context, id string) (plant.Plant, error) {
	var p plant.Plant
	if err := s.db.GetContext(ctx, &p, `SELECT `+plantColumns+` FROM plants WHERE id = $1`, id); err != nil {
		return plant.Plant{}, notFound("plant", id, err)
	}
	return p, nil
}

func (s *Store) ListPlants(ctx context.Context, cooperativeID string) ([]plant.Plant, error) {
	result := make([]plant.Plant, 0)
	var err error
	if cooperativeID == "" {
		err = s.db.SelectContext(ctx, &result, `SELECT `+plantColumns+` FROM plants ORDER BY created_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &result, `SELECT `+plantColumns+` FROM plants WHERE cooperative_id = $1 ORDER BY created_at, id`, cooperativeID)
	}
	return result, err
}
