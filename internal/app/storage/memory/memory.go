package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coopenergy/platform/internal/app/domain/cooperative"
	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plant"
	"github.com/coopenergy/platform/internal/app/domain/plantconfig"
	"github.com/coopenergy/platform/internal/app/domain/plantgroup"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
	"github.com/coopenergy/platform/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
// Every mutation runs under the store lock, which plays the role of the
// per-scope lock of the SQL store.
type Store struct {
	mu           sync.RWMutex
	nextID       int64
	cooperatives map[string]cooperative.Cooperative
	coopOrder    []string
	plants       map[string]plant.Plant
	plantOrder   []string
	configs      *flagTable[plantconfig.Config]
	groups       *flagTable[plantgroup.Group]
	vendors      *flagTable[vendor.Vendor]
}

var _ storage.CooperativeStore = (*Store)(nil)
var _ storage.PlantStore = (*Store)(nil)
var _ storage.PlantConfigStore = (*Store)(nil)
var _ storage.PlantGroupStore = (*Store)(nil)
var _ storage.VendorStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:       1,
		cooperatives: make(map[string]cooperative.Cooperative),
		plants:       make(map[string]plant.Plant),
		configs:      newFlagTable("plant config", plantConfigAccess),
		groups:       newFlagTable("plant group", plantGroupAccess),
		vendors:      newFlagTable("vendor", vendorAccess),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

var plantConfigAccess = flagAccess[plantconfig.Config]{
	id:        func(c plantconfig.Config) string { return c.ID },
	scope:     func(c plantconfig.Config) string { return c.CooperativeID },
	secondary: func(c plantconfig.Config) string { return c.PlantID },
	flagged:   func(c plantconfig.Config) bool { return c.IsDefault },
	setFlag:   func(c *plantconfig.Config, v bool) { c.IsDefault = v },
	active:    func(c plantconfig.Config) bool { return c.IsActive },
	setActive: func(c *plantconfig.Config, v bool) { c.IsActive = v },
	deleted:   func(c plantconfig.Config) bool { return c.DeletedAt != nil },
	markDel:   func(c *plantconfig.Config, t time.Time) { c.DeletedAt = &t; c.UpdatedAt = t },
	touch:     func(c *plantconfig.Config, t time.Time) { c.UpdatedAt = t },
	clone:     plantconfig.Config.Clone,
}

var plantGroupAccess = flagAccess[plantgroup.Group]{
	id:        func(g plantgroup.Group) string { return g.ID },
	scope:     func(g plantgroup.Group) string { return g.CooperativeID },
	secondary: func(g plantgroup.Group) string { return strings.ToLower(g.Name) },
	flagged:   func(g plantgroup.Group) bool { return g.IsDefault },
	setFlag:   func(g *plantgroup.Group, v bool) { g.IsDefault = v },
	active:    func(g plantgroup.Group) bool { return g.IsActive },
	setActive: func(g *plantgroup.Group, v bool) { g.IsActive = v },
	deleted:   func(g plantgroup.Group) bool { return g.DeletedAt != nil },
	markDel:   func(g *plantgroup.Group, t time.Time) { g.DeletedAt = &t; g.UpdatedAt = t },
	touch:     func(g *plantgroup.Group, t time.Time) { g.UpdatedAt = t },
	clone: func(g plantgroup.Group) plantgroup.Group {
		if g.DeletedAt != nil {
			d := *g.DeletedAt
			g.DeletedAt = &d
		}
		return g
	},
}

var vendorAccess = flagAccess[vendor.Vendor]{
	id:        func(v vendor.Vendor) string { return v.ID },
	scope:     func(v vendor.Vendor) string { return v.Category },
	secondary: func(v vendor.Vendor) string { return v.RegistrationNumber },
	flagged:   func(v vendor.Vendor) bool { return v.IsPreferred },
	setFlag:   func(v *vendor.Vendor, b bool) { v.IsPreferred = b },
	active:    func(v vendor.Vendor) bool { return v.IsActive },
	setActive: func(v *vendor.Vendor, b bool) { v.IsActive = b },
	deleted:   func(v vendor.Vendor) bool { return v.DeletedAt != nil },
	markDel:   func(v *vendor.Vendor, t time.Time) { v.DeletedAt = &t; v.UpdatedAt = t },
	touch:     func(v *vendor.Vendor, t time.Time) { v.UpdatedAt = t },
	eligible:  vendor.Vendor.Eligible,
	clone: func(v vendor.Vendor) vendor.Vendor {
		if v.Rating != nil {
			r := *v.Rating
			v.Rating = &r
		}
		if v.DeletedAt != nil {
			d := *v.DeletedAt
			v.DeletedAt = &d
		}
		return v
	},
}

// CooperativeStore implementation --------------------------------------------

func (s *Store) CreateCooperative(_ context.Context, coop cooperative.Cooperative) (cooperative.Cooperative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if coop.ID == "" {
		coop.ID = s.nextIDLocked()
	} else if _, exists := s.cooperatives[coop.ID]; exists {
		return cooperative.Cooperative{}, fmt.Errorf("cooperative %s: %w", coop.ID, storage.ErrDuplicate)
	}
	for _, existing := range s.cooperatives {
		if coop.Code != "" && strings.EqualFold(existing.Code, coop.Code) {
			return cooperative.Cooperative{}, fmt.Errorf("cooperative code %s: %w", coop.Code, storage.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	coop.CreatedAt = now
	coop.UpdatedAt = now
	s.cooperatives[coop.ID] = coop
	s.coopOrder = append(s.coopOrder, coop.ID)
	return coop, nil
}

func (s *Store) GetCooperative(_ context.Context, id string) (cooperative.Cooperative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coop, ok := s.cooperatives[id]
	if !ok {
		return cooperative.Cooperative{}, fmt.Errorf("cooperative %s: %w", id, storage.ErrNotFound)
	}
	return coop, nil
}

func (s *Store) ListCooperatives(_ context.Context) ([]cooperative.Cooperative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]cooperative.Cooperative, 0, len(s.coopOrder))
	for _, id := range s.coopOrder {
		result = append(result, s.cooperatives[id])
	}
	return result, nil
}

// PlantStore implementation ---------------------------------------------------

func (s *Store) CreatePlant(_ context.Context, p plant.Plant) (plant.Plant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.plants[p.ID]; exists {
		return plant.Plant{}, fmt.Errorf("plant %s: %w", p.ID, storage.ErrDuplicate)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.plants[p.ID] = p
	s.plantOrder = append(s.plantOrder, p.ID)
	return p, nil
}

func (s *Store) GetPlant(_ context.Context, id string) (plant.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plants[id]
	if !ok {
		return plant.Plant{}, fmt.Errorf("plant %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPlants(_ context.Context, cooperativeID string) ([]plant.Plant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]plant.Plant, 0)
	for _, id := range s.plantOrder {
		p := s.plants[id]
		if cooperativeID != "" && p.CooperativeID != cooperativeID {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

// PlantConfigStore implementation ---------------------------------------------

func (s *Store) CreatePlantConfig(_ context.Context, cfg plantconfig.Config) (plantconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = s.nextIDLocked()
	} else if _, exists := s.configs.rows[cfg.ID]; exists {
		return plantconfig.Config{}, fmt.Errorf("plant config %s: %w", cfg.ID, storage.ErrDuplicate)
	}
	now := time.Now().UTC()
	cfg.CreatedAt = now
	cfg.DeletedAt = nil
	return s.configs.insert(cfg, cfg.IsDefault, now)
}

func (s *Store) UpdatePlantConfig(_ context.Context, cfg plantconfig.Config) (plantconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.configs.live(cfg.ID)
	if err != nil {
		return plantconfig.Config{}, err
	}
	existing.Name = cfg.Name
	existing.Settings = cfg.Settings
	existing.UpdatedAt = time.Now().UTC()
	s.configs.replace(existing)
	return existing.Clone(), nil
}

func (s *Store) GetPlantConfig(_ context.Context, id string) (plantconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs.get(id)
}

func (s *Store) ListPlantConfigs(_ context.Context, cooperativeID string) ([]plantconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs.list(cooperativeID), nil
}

func (s *Store) DeletePlantConfig(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs.remove(id, time.Now().UTC())
}

func (s *Store) SetDefaultPlantConfig(_ context.Context, id string) (plantconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs.promote(id, time.Now().UTC())
}

func (s *Store) RemoveDefaultPlantConfig(_ context.Context, id string) (plantconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs.demote(id, time.Now().UTC())
}

func (s *Store) TogglePlantConfigActive(_ context.Context, id string) (plantconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configs.toggleActive(id, time.Now().UTC())
}

func (s *Store) GetDefaultPlantConfig(_ context.Context, cooperativeID string) (plantconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs.flagHolder(cooperativeID)
}

func (s *Store) PlantConfigStatistics(_ context.Context, cooperativeID string) (exclusive.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs.statistics(cooperativeID), nil
}

// PlantGroupStore implementation ----------------------------------------------

func (s *Store) CreatePlantGroup(_ context.Context, grp plantgroup.Group) (plantgroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if grp.ID == "" {
		grp.ID = s.nextIDLocked()
	} else if _, exists := s.groups.rows[grp.ID]; exists {
		return plantgroup.Group{}, fmt.Errorf("plant group %s: %w", grp.ID, storage.ErrDuplicate)
	}
	now := time.Now().UTC()
	grp.CreatedAt = now
	grp.DeletedAt = nil
	return s.groups.insert(grp, grp.IsDefault, now)
}

// UpdatePlantGroup changes the description. Renames go through the duplicate
// check so two live groups of a cooperative never share a name.
func (s *Store) UpdatePlantGroup(_ context.Context, grp plantgroup.Group) (plantgroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.groups.live(grp.ID)
	if err != nil {
		return plantgroup.Group{}, err
	}
	if grp.Name != "" {
		if !strings.EqualFold(grp.Name, existing.Name) {
			for _, other := range s.groups.list(existing.CooperativeID) {
				if other.ID != existing.ID && strings.EqualFold(other.Name, grp.Name) {
					return plantgroup.Group{}, fmt.Errorf("plant group %s/%s: %w", existing.CooperativeID, grp.Name, storage.ErrDuplicate)
				}
			}
		}
		existing.Name = grp.Name
	}
	existing.Description = grp.Description
	existing.UpdatedAt = time.Now().UTC()
	s.groups.replace(existing)
	return s.groups.get(existing.ID)
}

func (s *Store) GetPlantGroup(_ context.Context, id string) (plantgroup.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups.get(id)
}

func (s *Store) ListPlantGroups(_ context.Context, cooperativeID string) ([]plantgroup.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups.list(cooperativeID), nil
}

func (s *Store) DeletePlantGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups.remove(id, time.Now().UTC())
}

func (s *Store) SetDefaultPlantGroup(_ context.Context, id string) (plantgroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups.promote(id, time.Now().UTC())
}

func (s *Store) RemoveDefaultPlantGroup(_ context.Context, id string) (plantgroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups.demote(id, time.Now().UTC())
}

func (s *Store) TogglePlantGroupActive(_ context.Context, id string) (plantgroup.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups.toggleActive(id, time.Now().UTC())
}

func (s *Store) GetDefaultPlantGroup(_ context.Context, cooperativeID string) (plantgroup.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups.flagHolder(cooperativeID)
}

func (s *Store) PlantGroupStatistics(_ context.Context, cooperativeID string) (exclusive.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups.statistics(cooperativeID), nil
}

// VendorStore implementation --------------------------------------------------

func (s *Store) CreateVendor(_ context.Context, v vendor.Vendor) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	} else if _, exists := s.vendors.rows[v.ID]; exists {
		return vendor.Vendor{}, fmt.Errorf("vendor %s: %w", v.ID, storage.ErrDuplicate)
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.DeletedAt = nil
	return s.vendors.insert(v, v.IsPreferred, now)
}

func (s *Store) UpdateVendor(_ context.Context, v vendor.Vendor) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.vendors.live(v.ID)
	if err != nil {
		return vendor.Vendor{}, err
	}
	existing.Name = v.Name
	existing.Email = v.Email
	existing.Website = v.Website
	existing.Rating = v.Rating
	existing.UpdatedAt = time.Now().UTC()
	s.vendors.replace(existing)
	return s.vendors.get(existing.ID)
}

func (s *Store) GetVendor(_ context.Context, id string) (vendor.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendors.get(id)
}

func (s *Store) ListVendors(_ context.Context, category string) ([]vendor.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendors.list(category), nil
}

func (s *Store) DeleteVendor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendors.remove(id, time.Now().UTC())
}

func (s *Store) SetPreferredVendor(_ context.Context, id string) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendors.promote(id, time.Now().UTC())
}

func (s *Store) RemovePreferredVendor(_ context.Context, id string) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendors.demote(id, time.Now().UTC())
}

func (s *Store) ToggleVendorActive(_ context.Context, id string) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendors.toggleActive(id, time.Now().UTC())
}

// SetVendorVerified changes the verification flag. A preferred vendor cannot
// lose its verification until it is demoted.
func (s *Store) SetVendorVerified(_ context.Context, id string, verified bool) (vendor.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.vendors.live(id)
	if err != nil {
		return vendor.Vendor{}, err
	}
	if !verified && existing.IsPreferred {
		return vendor.Vendor{}, fmt.Errorf("vendor %s is preferred and must stay verified: %w", id, storage.ErrProtectedState)
	}
	existing.IsVerified = verified
	existing.UpdatedAt = time.Now().UTC()
	s.vendors.replace(existing)
	return s.vendors.get(id)
}

func (s *Store) GetPreferredVendor(_ context.Context, category string) (vendor.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendors.flagHolder(category)
}

func (s *Store) VendorStatistics(_ context.Context, category string) (exclusive.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vendors.statistics(category), nil
}
