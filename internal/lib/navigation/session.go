package navigation

import (
	"github.com/google/uuid"
)

// Session is the single record of route-progress truth for one waypoint set.
// ActiveTargetIndex and LastReachedIndex index the targets (waypoints after
// the start); LastReachedIndex is -1 until the first arrival.
type Session struct {
	ID                     uuid.UUID `json:"id"`
	Phase                  Phase     `json:"phase"`
	ActiveTargetIndex      int       `json:"active_target_index"`
	LastReachedIndex       int       `json:"last_reached_index"`
	LastOpenedTargetID     string    `json:"last_opened_target_id,omitempty"`
	InitialDistanceToStart *float64  `json:"initial_distance_to_start,omitempty"`
}

func newSession() Session {
	return Session{
		ID:               uuid.New(),
		Phase:            PreRoute,
		LastReachedIndex: -1,
	}
}

// clone copies the session so callers never share the pointer field
func (s Session) clone() Session {
	if s.InitialDistanceToStart != nil {
		d := *s.InitialDistanceToStart
		s.InitialDistanceToStart = &d
	}
	return s
}
