package plant

import "time"

// Plant is a generation site registered under a cooperative.
type Plant struct {
	ID            string    `json:"id" db:"id"`
	CooperativeID string    `json:"cooperative_id" db:"cooperative_id"`
	Name          string    `json:"name" db:"name"`
	CapacityKW    float64   `json:"capacity_kw" db:"capacity_kw"`
	Location      string    `json:"location,omitempty" db:"location"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
