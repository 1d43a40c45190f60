package navigation

import (
	"github.com/google/uuid"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// EventKind names a navigation side effect exposed to collaborators
type EventKind string

const (
	EventArrived            EventKind = "arrived"
	EventPhaseChanged       EventKind = "phase_changed"
	EventLegPathUpdated     EventKind = "leg_path_updated"
	EventFollowStateChanged EventKind = "follow_state_changed"
	EventLegExhausted       EventKind = "leg_exhausted"
	EventNearbyChanged      EventKind = "nearby_changed"
	EventOffRoute           EventKind = "off_route"
)

// Event is a single side effect. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID uuid.UUID `json:"session_id"`

	// arrived, nearby_changed, off_route, leg_path_updated
	TargetIndex int           `json:"target_index"`
	Waypoint    *WaypointSpec `json:"waypoint,omitempty"`
	Implicit    bool          `json:"implicit,omitempty"` // arrival inferred by skip handling

	// phase_changed
	Phase Phase `json:"phase,omitempty"`

	// leg_path_updated
	Path  []geo.Point    `json:"path,omitempty"`
	Turns []routing.Turn `json:"turns,omitempty"`

	// follow_state_changed
	Following bool `json:"following"`

	// nearby_changed
	Nearby bool `json:"nearby"`

	// nearby_changed, off_route
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

func arrivedEvent(session uuid.UUID, index int, w Waypoint, implicit bool) Event {
	spec := Describe(w)
	return Event{Kind: EventArrived, SessionID: session, TargetIndex: index, Waypoint: &spec, Implicit: implicit}
}

func phaseEvent(session uuid.UUID, phase Phase) Event {
	return Event{Kind: EventPhaseChanged, SessionID: session, Phase: phase}
}
