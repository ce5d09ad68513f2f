package definitions

import "github.com/spance/droidbot-go/constants"

// DisplayInfo is a normalized display geometry record. Density is either a
// positive scale factor or exactly constants.NoDensity.
type DisplayInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Density     float64 `json:"density"`
	Orientation *int    `json:"orientation,omitempty"`
}

func (d *DisplayInfo) HasDensity() bool {
	return d != nil && d.Density > 0
}

// Valid reports whether the record satisfies the geometry invariants.
func (d *DisplayInfo) Valid() bool {
	if d == nil || d.Width <= 0 || d.Height <= 0 {
		return false
	}
	return d.Density > 0 || d.Density == constants.NoDensity
}
