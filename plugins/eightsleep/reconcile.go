package eightsleep

import "math"

// OperatingState is the displayed thermostat state for a side.
type OperatingState string

const (
	StateHeating      OperatingState = "heating"
	StateCooling      OperatingState = "cooling"
	StateIdle         OperatingState = "idle"
	StateOperatingOff OperatingState = "off"
)

// DefaultToleranceF is the dead band around the target. It must be at
// least the mapper's smallest representable step or the displayed state
// flaps at the boundary.
const DefaultToleranceF = 0.5

// Reconcile derives the displayed operating state from current vs. target
// temperature and the on/off intent. Pure; re-run after every set and
// every poll refresh.
func Reconcile(currentF, targetF float64, intentOn bool, toleranceF float64) OperatingState {
	if !intentOn {
		return StateOperatingOff
	}
	if math.Abs(targetF-currentF) <= toleranceF {
		return StateIdle
	}
	if currentF < targetF {
		return StateHeating
	}
	return StateCooling
}
