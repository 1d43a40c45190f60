package navigation

import "errors"

// Default proximity radii in meters
const (
	DefaultArrivalStartMeters    = 60.0  // reaching the start waypoint
	DefaultArrivalMeters         = 50.0  // reaching a target, confirmed on-path
	DefaultOnPathToleranceMeters = 35.0  // path adherence band around a leg
	DefaultStrictArrivalMeters   = 25.0  // reaching a target when no leg geometry exists
	DefaultNearbyEnterMeters     = 80.0  // "nearby" indicator switches on
	DefaultNearbyExitMeters      = 100.0 // "nearby" indicator switches off
	DefaultOffRouteMeters        = 40.0  // live position considered off the active leg
)

// Thresholds groups the radii that drive arrival, adherence, and the
// nearby indicator
type Thresholds struct {
	ArrivalStart    float64 `json:"arrival_start" yaml:"arrival_start" koanf:"arrival_start" validate:"gt=0"`
	Arrival         float64 `json:"arrival" yaml:"arrival" koanf:"arrival" validate:"gt=0"`
	OnPathTolerance float64 `json:"on_path_tolerance" yaml:"on_path_tolerance" koanf:"on_path_tolerance" validate:"gt=0"`
	StrictArrival   float64 `json:"strict_arrival" yaml:"strict_arrival" koanf:"strict_arrival" validate:"gt=0"`
	NearbyEnter     float64 `json:"nearby_enter" yaml:"nearby_enter" koanf:"nearby_enter" validate:"gt=0"`
	NearbyExit      float64 `json:"nearby_exit" yaml:"nearby_exit" koanf:"nearby_exit" validate:"gt=0"`
	OffRoute        float64 `json:"off_route" yaml:"off_route" koanf:"off_route" validate:"gt=0"`
}

// DefaultThresholds returns the standard radii
func DefaultThresholds() Thresholds {
	return Thresholds{
		ArrivalStart:    DefaultArrivalStartMeters,
		Arrival:         DefaultArrivalMeters,
		OnPathTolerance: DefaultOnPathToleranceMeters,
		StrictArrival:   DefaultStrictArrivalMeters,
		NearbyEnter:     DefaultNearbyEnterMeters,
		NearbyExit:      DefaultNearbyExitMeters,
		OffRoute:        DefaultOffRouteMeters,
	}
}

// Validate checks the relationships between radii
func (t Thresholds) Validate() error {
	if t.ArrivalStart <= 0 || t.Arrival <= 0 || t.OnPathTolerance <= 0 ||
		t.StrictArrival <= 0 || t.NearbyEnter <= 0 || t.NearbyExit <= 0 || t.OffRoute <= 0 {
		return errors.New("all thresholds must be positive")
	}
	if t.StrictArrival > t.Arrival {
		return errors.New("strict arrival radius must not exceed arrival radius")
	}
	if t.NearbyExit < t.NearbyEnter {
		return errors.New("nearby exit radius must be at least the enter radius")
	}
	return nil
}
