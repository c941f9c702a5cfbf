// Package units provides shared constants and validation for acceleration units
package units

// Unit constants
const (
	MG   = "mg"
	G    = "g"
	MPS2 = "mps2"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MG, G, MPS2}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mg, g, mps2"
}

// ConvertAcceleration converts an acceleration from milli-g to the target units.
// The pipeline stores accelerations in mg (milli-g).
func ConvertAcceleration(valueMG float64, targetUnits string) float64 {
	switch targetUnits {
	case MG:
		return valueMG
	case G:
		return valueMG / 1000.0
	case MPS2:
		return valueMG * 0.00980665 // mg to m/s²
	default:
		return valueMG
	}
}
