package vendors

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
	"github.com/coopenergy/platform/internal/app/services/flagscope"
	"github.com/coopenergy/platform/internal/app/storage"
	"github.com/coopenergy/platform/internal/app/validation"
	"github.com/coopenergy/platform/internal/errors"
	"github.com/coopenergy/platform/pkg/logger"
)

// Kind labels vendor operations in metrics, logs and cache keys.
const Kind = "vendor"

// CreateInput describes a new vendor. A vendor created as preferred must
// also be created verified and active.
type CreateInput struct {
	Category           string   `json:"category" validate:"required,max=100"`
	RegistrationNumber string   `json:"registration_number" validate:"required,max=100"`
	Name               string   `json:"name" validate:"required,max=255"`
	Email              string   `json:"email,omitempty" validate:"omitempty,email"`
	Website            string   `json:"website,omitempty" validate:"omitempty,url"`
	Rating             *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	IsVerified         bool     `json:"is_verified"`
	IsActive           *bool    `json:"is_active,omitempty"`
	IsPreferred        bool     `json:"is_preferred"`
}

// UpdateInput carries the descriptive fields of a vendor.
type UpdateInput struct {
	Name    string   `json:"name" validate:"required,max=255"`
	Email   string   `json:"email,omitempty" validate:"omitempty,email"`
	Website string   `json:"website,omitempty" validate:"omitempty,url"`
	Rating  *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
}

func init() {
	validation.RegisterStructRule(preferredRequiresEligibility, CreateInput{})
}

func preferredRequiresEligibility(sl validator.StructLevel) {
	in := sl.Current().Interface().(CreateInput)
	if !in.IsPreferred {
		return
	}
	if !in.IsVerified {
		sl.ReportError(in.IsVerified, "is_verified", "IsVerified", "required_for_preferred", "")
	}
	if in.IsActive != nil && !*in.IsActive {
		sl.ReportError(in.IsActive, "is_active", "IsActive", "required_for_preferred", "")
	}
}

// Service manages vendors and the preferred vendor of each category.
type Service struct {
	store storage.VendorStore
	ops   *flagscope.Ops
	log   *logger.Logger
}

// New constructs a vendor service.
func New(store storage.VendorStore, log *logger.Logger, opts ...flagscope.Option) *Service {
	if log == nil {
		log = logger.NewDefault("vendors")
	}
	return &Service{store: store, ops: flagscope.New(Kind, log, opts...), log: log}
}

// Create stores a vendor, making it the preferred vendor of its category
// when IsPreferred is set.
func (s *Service) Create(ctx context.Context, in CreateInput) (vendor.Vendor, error) {
	in.Category = strings.TrimSpace(in.Category)
	in.RegistrationNumber = strings.TrimSpace(in.RegistrationNumber)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Website = strings.TrimSpace(in.Website)
	if err := validation.Struct(in); err != nil {
		return vendor.Vendor{}, err
	}

	v := vendor.Vendor{
		Category:           in.Category,
		RegistrationNumber: in.RegistrationNumber,
		Name:               in.Name,
		Email:              in.Email,
		Website:            in.Website,
		Rating:             in.Rating,
		IsVerified:         in.IsVerified,
		IsActive:           in.IsActive == nil || *in.IsActive,
		IsPreferred:        in.IsPreferred,
	}
	return flagscope.Mutate(ctx, s.ops, "create", in.RegistrationNumber, func(ctx context.Context) (vendor.Vendor, error) {
		return s.store.CreateVendor(ctx, v)
	}, scopeOf)
}

// Update changes the descriptive fields of a vendor.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (vendor.Vendor, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Website = strings.TrimSpace(in.Website)
	if err := validation.Struct(in); err != nil {
		return vendor.Vendor{}, err
	}
	updated, err := s.store.UpdateVendor(ctx, vendor.Vendor{
		ID:      id,
		Name:    in.Name,
		Email:   in.Email,
		Website: in.Website,
		Rating:  in.Rating,
	})
	if err != nil {
		return vendor.Vendor{}, err
	}
	s.log.WithField("vendor_id", id).Info("vendor updated")
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (vendor.Vendor, error) {
	return s.store.GetVendor(ctx, id)
}

// List returns the live vendors of a category, or all when category is
// empty.
func (s *Service) List(ctx context.Context, category string) ([]vendor.Vendor, error) {
	return s.store.ListVendors(ctx, strings.TrimSpace(category))
}

func (s *Service) Delete(ctx context.Context, id string) error {
	v, err := s.store.GetVendor(ctx, id)
	if err != nil {
		return err
	}
	_, err = flagscope.Mutate(ctx, s.ops, "delete", id, func(ctx context.Context) (vendor.Vendor, error) {
		return v, s.store.DeleteVendor(ctx, id)
	}, scopeOf)
	return err
}

// SetAsPreferred makes the vendor the single preferred vendor of its
// category. The vendor must be verified and active.
func (s *Service) SetAsPreferred(ctx context.Context, id string) (vendor.Vendor, error) {
	return flagscope.Mutate(ctx, s.ops, "promote", id, func(ctx context.Context) (vendor.Vendor, error) {
		return s.store.SetPreferredVendor(ctx, id)
	}, scopeOf)
}

func (s *Service) RemovePreferred(ctx context.Context, id string) (vendor.Vendor, error) {
	return flagscope.Mutate(ctx, s.ops, "demote", id, func(ctx context.Context) (vendor.Vendor, error) {
		return s.store.RemovePreferredVendor(ctx, id)
	}, scopeOf)
}

// ToggleActive flips the active flag. A preferred vendor must be demoted
// first.
func (s *Service) ToggleActive(ctx context.Context, id string) (vendor.Vendor, error) {
	return flagscope.Mutate(ctx, s.ops, "toggle_active", id, func(ctx context.Context) (vendor.Vendor, error) {
		return s.store.ToggleVendorActive(ctx, id)
	}, scopeOf)
}

// SetVerified records the verification state. A preferred vendor cannot be
// unverified.
func (s *Service) SetVerified(ctx context.Context, id string, verified bool) (vendor.Vendor, error) {
	op := "verify"
	if !verified {
		op = "unverify"
	}
	return flagscope.Mutate(ctx, s.ops, op, id, func(ctx context.Context) (vendor.Vendor, error) {
		return s.store.SetVendorVerified(ctx, id, verified)
	}, scopeOf)
}

// GetPreferred returns the active preferred vendor of a category.
func (s *Service) GetPreferred(ctx context.Context, category string) (vendor.Vendor, error) {
	category = strings.TrimSpace(category)
	return flagscope.Holder(ctx, s.ops, category,
		s.store.GetVendor,
		func(v vendor.Vendor) bool {
			return v.Category == category && v.IsPreferred && v.IsActive
		},
		s.store.GetPreferredVendor,
		func(v vendor.Vendor) string { return v.ID },
	)
}

func (s *Service) Statistics(ctx context.Context, category string) (exclusive.Statistics, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return exclusive.Statistics{}, errors.Validation("category is required", nil)
	}
	return s.store.VendorStatistics(ctx, category)
}

func scopeOf(v vendor.Vendor) string { return v.Category }
