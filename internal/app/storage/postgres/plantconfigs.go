package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plantconfig"
)

var plantConfigs = flagTable{
	table:     "cooperative_plant_configs",
	label:     "plant config",
	scope:     "cooperative_id",
	secondary: "plant_id",
	flag:      "is_default",
}

const plantConfigColumns = `id, cooperative_id, plant_id, name, settings, is_default, is_active, deleted_at, created_at, updated_at`

func (s *Store) CreatePlantConfig(ctx context.Context, cfg plantconfig.Config) (plantconfig.Config, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	now := s.now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	var out plantconfig.Config
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert := func() error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO cooperative_plant_configs (id, cooperative_id, plant_id, name, settings, is_default, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8)
			`, cfg.ID, cfg.CooperativeID, cfg.PlantID, cfg.Name, cfg.Settings, cfg.IsActive, cfg.CreatedAt, cfg.UpdatedAt)
			return err
		}
		if err := plantConfigs.create(ctx, tx, cfg.ID, cfg.CooperativeID, cfg.PlantID, cfg.IsDefault, now, insert); err != nil {
			return err
		}
		return getPlantConfig(ctx, tx, cfg.ID, &out)
	})
	return out, err
}

func (s *Store) UpdatePlantConfig(ctx context.Context, cfg plantconfig.Config) (plantconfig.Config, error) {
	var out plantconfig.Config
	err := s.db.GetContext(ctx, &out, `
		UPDATE cooperative_plant_configs
		SET name = $2, settings = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+plantConfigColumns, cfg.ID, cfg.Name, cfg.Settings, s.now())
	if err != nil {
		return plantconfig.Config{}, notFound(plantConfigs.label, cfg.ID, classify(err))
	}
	return out, nil
}

func (s *Store) GetPlantConfig(ctx context.Context, id string) (plantconfig.Config, error) {
	var out plantconfig.Config
	if err := getPlantConfig(ctx, s.db, id, &out); err != nil {
		return plantconfig.Config{}, err
	}
	return out, nil
}

func (s *Store) ListPlantConfigs(ctx context.Context, cooperativeID string) ([]plantconfig.Config, error) {
	result := make([]plantconfig.Config, 0)
	var err error
	if cooperativeID == "" {
		err = s.db.SelectContext(ctx, &result, `
			SELECT `+plantConfigColumns+` FROM cooperative_plant_configs
			WHERE deleted_at IS NULL ORDER BY created_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &result, `
			SELECT `+plantConfigColumns+` FROM cooperative_plant_configs
			WHERE cooperative_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`, cooperativeID)
	}
	return result, err
}

func (s *Store) DeletePlantConfig(ctx context.Context, id string) error {
	return plantConfigs.softDelete(ctx, s.db, id, s.now())
}

func (s *Store) SetDefaultPlantConfig(ctx context.Context, id string) (plantconfig.Config, error) {
	return s.mutatePlantConfig(ctx, id, plantConfigs.promote)
}

func (s *Store) RemoveDefaultPlantConfig(ctx context.Context, id string) (plantconfig.Config, error) {
	return s.mutatePlantConfig(ctx, id, plantConfigs.demote)
}

func (s *Store) TogglePlantConfigActive(ctx context.Context, id string) (plantconfig.Config, error) {
	return s.mutatePlantConfig(ctx, id, plantConfigs.toggleActive)
}

func (s *Store) GetDefaultPlantConfig(ctx context.Context, cooperativeID string) (plantconfig.Config, error) {
	var out plantconfig.Config
	err := s.db.GetContext(ctx, &out, `
		SELECT `+plantConfigColumns+` FROM cooperative_plant_configs
		WHERE cooperative_id = $1 AND is_default AND is_active AND deleted_at IS NULL
		LIMIT 1`, cooperativeID)
	if err != nil {
		return plantconfig.Config{}, notFound("default plant config for cooperative", cooperativeID, err)
	}
	return out, nil
}

func (s *Store) PlantConfigStatistics(ctx context.Context, cooperativeID string) (exclusive.Statistics, error) {
	return plantConfigs.statistics(ctx, s.db, cooperativeID)
}

func (s *Store) mutatePlantConfig(ctx context.Context, id string, fn rowMutation) (plantconfig.Config, error) {
	var out plantconfig.Config
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := fn(ctx, tx, id, s.now()); err != nil {
			return err
		}
		return getPlantConfig(ctx, tx, id, &out)
	})
	return out, err
}

func getPlantConfig(ctx context.Context, q sqlx.QueryerContext, id string, dest *plantconfig.Config) error {
	err := sqlx.GetContext(ctx, q, dest, `
		SELECT `+plantConfigColumns+` FROM cooperative_plant_configs
		WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFound(plantConfigs.label, id, err)
}
