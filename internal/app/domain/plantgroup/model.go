package plantgroup

import "time"

// Group clusters plants of a cooperative. Names are unique per cooperative
// and at most one live group per cooperative is the default.
type Group struct {
	ID            string     `json:"id" db:"id"`
	CooperativeID string     `json:"cooperative_id" db:"cooperative_id"`
	Name          string     `json:"name" db:"name"`
	Description   string     `json:"description,omitempty" db:"description"`
	IsDefault     bool       `json:"is_default" db:"is_default"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	DeletedAt     *time.Time `json:"-" db:"deleted_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
