package navigation

import (
	"github.com/google/uuid"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

// ProximityTracker drives the visual "nearby" indicator for the current
// target. It switches on inside the enter radius and only switches off
// beyond the larger exit radius, so jitter near the edge does not flicker.
type ProximityTracker struct {
	enter float64
	exit  float64

	target Waypoint
	index  int
	nearby bool
}

// NewProximityTracker creates a tracker using the nearby radii of t
func NewProximityTracker(t Thresholds) *ProximityTracker {
	return &ProximityTracker{enter: t.NearbyEnter, exit: t.NearbyExit}
}

// Nearby reports the current indicator state
func (p *ProximityTracker) Nearby() bool {
	return p.nearby
}

// Update evaluates pos against target. Switching targets clears the
// indicator for the previous one first.
func (p *ProximityTracker) Update(session uuid.UUID, index int, target Waypoint, pos geo.Point) []Event {
	var events []Event

	if target == nil {
		if p.nearby {
			events = append(events, p.event(session, false, 0))
		}
		p.target, p.nearby = nil, false
		return events
	}

	if p.target == nil || target.ID() != p.target.ID() {
		if p.nearby {
			events = append(events, p.event(session, false, 0))
		}
		p.target, p.index, p.nearby = target, index, false
	}

	d := geo.Distance(pos, target.Point())
	switch {
	case !p.nearby && d < p.enter:
		p.nearby = true
		events = append(events, p.event(session, true, d))
	case p.nearby && d > p.exit:
		p.nearby = false
		events = append(events, p.event(session, false, d))
	}
	return events
}

// Reset forgets the tracked target without emitting
func (p *ProximityTracker) Reset() {
	p.target, p.index, p.nearby = nil, 0, false
}

func (p *ProximityTracker) event(session uuid.UUID, nearby bool, d float64) Event {
	spec := Describe(p.target)
	return Event{
		Kind:           EventNearbyChanged,
		SessionID:      session,
		TargetIndex:    p.index,
		Waypoint:       &spec,
		Nearby:         nearby,
		DistanceMeters: d,
	}
}
