package postgres

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plantgroup"
)

// Group names are unique per cooperative regardless of case.
var plantGroups = flagTable{
	table:     "plant_groups",
	label:     "plant group",
	scope:     "cooperative_id",
	secondary: "lower(name)",
	flag:      "is_default",
}

const plantGroupColumns = `id, cooperative_id, name, description, is_default, is_active, deleted_at, created_at, updated_at`

func (s *Store) CreatePlantGroup(ctx context.Context, grp plantgroup.Group) (plantgroup.Group, error) {
	if grp.ID == "" {
		grp.ID = uuid.NewString()
	}
	now := s.now()
	grp.CreatedAt = now
	grp.UpdatedAt = now

	var out plantgroup.Group
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert := func() error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO plant_groups (id, cooperative_id, name, description, is_default, is_active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, FALSE, $5, $6, $7)
			`, grp.ID, grp.CooperativeID, grp.Name, grp.Description, grp.IsActive, grp.CreatedAt, grp.UpdatedAt)
			return err
		}
		secondary := strings.ToLower(grp.Name)
		if err := plantGroups.create(ctx, tx, grp.ID, grp.CooperativeID, secondary, grp.IsDefault, now, insert); err != nil {
			return err
		}
		return getPlantGroup(ctx, tx, grp.ID, &out)
	})
	return out, err
}

// UpdatePlantGroup changes the description and, when given, the name. A
// rename onto another live group's name fails on the unique name index.
func (s *Store) UpdatePlantGroup(ctx context.Context, grp plantgroup.Group) (plantgroup.Group, error) {
	var out plantgroup.Group
	err := s.db.GetContext(ctx, &out, `
		UPDATE plant_groups
		SET name = COALESCE(NULLIF($2, ''), name), description = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+plantGroupColumns, grp.ID, grp.Name, grp.Description, s.now())
	if err != nil {
		return plantgroup.Group{}, notFound(plantGroups.label, grp.ID, classify(err))
	}
	return out, nil
}

func (s *Store) GetPlantGroup(ctx context.Context, id string) (plantgroup.Group, error) {
	var out plantgroup.Group
	if err := getPlantGroup(ctx, s.db, id, &out); err != nil {
		return plantgroup.Group{}, err
	}
	return out, nil
}

func (s *Store) ListPlantGroups(ctx context.Context, cooperativeID string) ([]plantgroup.Group, error) {
	result := make([]plantgroup.Group, 0)
	var err error
	if cooperativeID == "" {
		err = s.db.SelectContext(ctx, &result, `
			SELECT `+plantGroupColumns+` FROM plant_groups
			WHERE deleted_at IS NULL ORDER BY created_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &result, `
			SELECT `+plantGroupColumns+` FROM plant_groups
			WHERE cooperative_id = $1 AND deleted_at IS NULL ORDER BY created_at, id`, cooperativeID)
	}
	return result, err
}

func (s *Store) DeletePlantGroup(ctx context.Context, id string) error {
	return plantGroups.softDelete(ctx, s.db, id, s.now())
}

func (s *Store) SetDefaultPlantGroup(ctx context.Context, id string) (plantgroup.Group, error) {
	return s.mutatePlantGroup(ctx, id, plantGroups.promote)
}

func (s *Store) RemoveDefaultPlantGroup(ctx context.Context, id string) (plantgroup.Group, error) {
	return s.mutatePlantGroup(ctx, id, plantGroups.demote)
}

func (s *Store) TogglePlantGroupActive(ctx context.Context, id string) (plantgroup.Group, error) {
	return s.mutatePlantGroup(ctx, id, plantGroups.toggleActive)
}

func (s *Store) GetDefaultPlantGroup(ctx context.Context, cooperativeID string) (plantgroup.Group, error) {
	var out plantgroup.Group
	err := s.db.GetContext(ctx, &out, `
		SELECT `+plantGroupColumns+` FROM plant_groups
		WHERE cooperative_id = $1 AND is_default AND is_active AND deleted_at IS NULL
		LIMIT 1`, cooperativeID)
	if err != nil {
		return plantgroup.Group{}, notFound("default plant group for cooperative", cooperativeID, err)
	}
	return out, nil
}

func (s *Store) PlantGroupStatistics(ctx context.Context, cooperativeID string) (exclusive.Statistics, error) {
	return plantGroups.statistics(ctx, s.db, cooperativeID)
}

func (s *Store) mutatePlantGroup(ctx context.Context, id string, fn rowMutation) (plantgroup.Group, error) {
	var out plantgroup.Group
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := fn(ctx, tx, id, s.now()); err != nil {
			return err
		}
		return getPlantGroup(ctx, tx, id, &out)
	})
	return out, err
}

func getPlantGroup(ctx context.Context, q sqlx.QueryerContext, id string, dest *plantgroup.Group) error {
	err := sqlx.GetContext(ctx, q, dest, `
		SELECT `+plantGroupColumns+` FROM plant_groups
		WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFound(plantGroups.label, id, err)
}
