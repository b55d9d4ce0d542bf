// Package exclusive holds the types shared by every entity that carries an
// exclusive per-scope flag.
package exclusive

// Statistics summarises the rows of one scope.
type Statistics struct {
	Scope      string `json:"scope"`
	Total      int    `json:"total"`
	Active     int    `json:"active"`
	Inactive   int    `json:"inactive"`
	HasDefault bool   `json:"has_default"`
	DefaultID  string `json:"default_id,omitempty"`
}
