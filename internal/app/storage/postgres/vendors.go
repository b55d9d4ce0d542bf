package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
	"github.com/coopenergy/platform/internal/app/storage"
)

// Only verified, active vendors may be preferred.
var vendors = flagTable{
	table:     "vendors",
	label:     "vendor",
	scope:     "category",
	secondary: "registration_number",
	flag:      "is_preferred",
	eligible:  "is_verified AND is_active",
}

const vendorColumns = `id, category, registration_number, name, email, website, rating, is_verified, is_active, is_preferred, deleted_at, created_at, updated_at`

func (s *Store) CreateVendor(ctx context.Context, v vendor.Vendor) (vendor.Vendor, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := s.now()
	v.CreatedAt = now
	v.UpdatedAt = now

	var out vendor.Vendor
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		insert := func() error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO vendors (id, category, registration_number, name, email, website, rating, is_verified, is_active, is_preferred, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $11)
			`, v.ID, v.Category, v.RegistrationNumber, v.Name, v.Email, v.Website, v.Rating, v.IsVerified, v.IsActive, v.CreatedAt, v.UpdatedAt)
			return err
		}
		if err := vendors.create(ctx, tx, v.ID, v.Category, v.RegistrationNumber, v.IsPreferred, now, insert); err != nil {
			return err
		}
		return getVendor(ctx, tx, v.ID, &out)
	})
	return out, err
}

func (s *Store) UpdateVendor(ctx context.Context, v vendor.Vendor) (vendor.Vendor, error) {
	var out vendor.Vendor
	err := s.db.GetContext(ctx, &out, `
		UPDATE vendors
		SET name = $2, email = $3, website = $4, rating = $5, updated_at = $6
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+vendorColumns, v.ID, v.Name, v.Email, v.Website, v.Rating, s.now())
	if err != nil {
		return vendor.Vendor{}, notFound(vendors.label, v.ID, classify(err))
	}
	return out, nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (vendor.Vendor, error) {
	var out vendor.Vendor
	if err := getVendor(ctx, s.db, id, &out); err != nil {
		return vendor.Vendor{}, err
	}
	return out, nil
}

func (s *Store) ListVendors(ctx context.Context, category string) ([]vendor.Vendor, error) {
	result := make([]vendor.Vendor, 0)
	var err error
	if category == "" {
		err = s.db.SelectContext(ctx, &result, `
			SELECT `+vendorColumns+` FROM vendors
			WHERE deleted_at IS NULL ORDER BY created_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &result, `
			SELECT `+vendorColumns+` FROM vendors
			WHERE category = $1 AND deleted_at IS NULL ORDER BY created_at, id`, category)
	}
	return result, err
}

func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	return vendors.softDelete(ctx, s.db, id, s.now())
}

func (s *Store) SetPreferredVendor(ctx context.Context, id string) (vendor.Vendor, error) {
	return s.mutateVendor(ctx, id, vendors.promote)
}

func (s *Store) RemovePreferredVendor(ctx context.Context, id string) (vendor.Vendor, error) {
	return s.mutateVendor(ctx, id, vendors.demote)
}

func (s *Store) ToggleVendorActive(ctx context.Context, id string) (vendor.Vendor, error) {
	return s.mutateVendor(ctx, id, vendors.toggleActive)
}

// SetVendorVerified changes the verification flag. A preferred vendor keeps
// its verification until it is demoted.
func (s *Store) SetVendorVerified(ctx context.Context, id string, verified bool) (vendor.Vendor, error) {
	return s.mutateVendor(ctx, id, func(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
		var preferred bool
		err := tx.GetContext(ctx, &preferred, `SELECT is_preferred FROM vendors WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
		if err != nil {
			return notFound(vendors.label, id, err)
		}
		if preferred && !verified {
			return fmt.Errorf("vendor %s is preferred and must stay verified: %w", id, storage.ErrProtectedState)
		}
		_, err = tx.ExecContext(ctx, `UPDATE vendors SET is_verified = $2, updated_at = $3 WHERE id = $1`, id, verified, now)
		return err
	})
}

func (s *Store) GetPreferredVendor(ctx context.Context, category string) (vendor.Vendor, error) {
	var out vendor.Vendor
	err := s.db.GetContext(ctx, &out, `
		SELECT `+vendorColumns+` FROM vendors
		WHERE category = $1 AND is_preferred AND is_active AND deleted_at IS NULL
		LIMIT 1`, category)
	if err != nil {
		return vendor.Vendor{}, notFound("preferred vendor for category", category, err)
	}
	return out, nil
}

func (s *Store) VendorStatistics(ctx context.Context, category string) (exclusive.Statistics, error) {
	return vendors.statistics(ctx, s.db, category)
}

func (s *Store) mutateVendor(ctx context.Context, id string, fn rowMutation) (vendor.Vendor, error) {
	var out vendor.Vendor
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := fn(ctx, tx, id, s.now()); err != nil {
			return err
		}
		return getVendor(ctx, tx, id, &out)
	})
	return out, err
}

func getVendor(ctx context.Context, q sqlx.QueryerContext, id string, dest *vendor.Vendor) error {
	err := sqlx.GetContext(ctx, q, dest, `
		SELECT `+vendorColumns+` FROM vendors
		WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFound(vendors.label, id, err)
}
