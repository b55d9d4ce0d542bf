package plantconfig

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Config is a plant configuration owned by a cooperative. At most one live
// configuration per cooperative is the default.
type Config struct {
	ID            string     `json:"id" db:"id"`
	CooperativeID string     `json:"cooperative_id" db:"cooperative_id"`
	PlantID       string     `json:"plant_id" db:"plant_id"`
	Name          string     `json:"name" db:"name"`
	Settings      Settings   `json:"settings,omitempty" db:"settings"`
	IsDefault     bool       `json:"is_default" db:"is_default"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	DeletedAt     *time.Time `json:"-" db:"deleted_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Settings is free-form configuration stored as JSONB.
type Settings map[string]any

// Value implements driver.Valuer.
func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *Settings) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("plantconfig: cannot scan %T into Settings", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	out := make(Settings)
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		out = nil
	}
	*s = out
	return nil
}

// Clone returns a copy that shares no mutable state with c.
func (c Config) Clone() Config {
	if c.Settings != nil {
		c.Settings = Settings(copyValue(map[string]any(c.Settings)).(map[string]any))
	}
	if c.DeletedAt != nil {
		deleted := *c.DeletedAt
		c.DeletedAt = &deleted
	}
	return c
}

// copyValue copies the maps and slices that JSON decoding produces.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case Settings:
		return Settings(copyValue(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
