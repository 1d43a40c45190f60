package navigation

import (
	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// LegLookup supplies the leg geometry leading to a target, if one has been fetched
type LegLookup interface {
	Leg(targetID string) (*routing.Leg, bool)
}

// Progress summarises how far the session has come
type Progress struct {
	Phase    Phase   `json:"phase"`
	Fraction float64 `json:"fraction"` // 0..1 toward the start in PRE_ROUTE, of targets otherwise
	Reached  int     `json:"reached"`
	Total    int     `json:"total"`
}

// Controller owns the route-progress state machine. It is not safe for
// concurrent use; a single owner feeds it positions.
type Controller struct {
	waypoints  []Waypoint
	targets    []Waypoint
	session    Session
	thresholds Thresholds
	matcher    routing.PathMatcher
	legs       LegLookup

	lastDistanceToStart float64
}

// NewController starts a session over waypoints. waypoints[0] is the start;
// the remaining waypoints are the targets. legs may be nil.
func NewController(waypoints []Waypoint, thresholds Thresholds, legs LegLookup) *Controller {
	c := &Controller{
		thresholds: thresholds,
		matcher:    routing.NewPathMatcher(),
		legs:       legs,
	}
	c.Reset(waypoints)
	return c
}

// Reset replaces the waypoint set and starts a fresh session
func (c *Controller) Reset(waypoints []Waypoint) {
	c.waypoints = append([]Waypoint(nil), waypoints...)
	c.targets = nil
	if len(c.waypoints) > 1 {
		c.targets = c.waypoints[1:]
	}
	c.session = newSession()
	c.lastDistanceToStart = 0
}

// SetLegLookup replaces the source of leg geometry
func (c *Controller) SetLegLookup(legs LegLookup) {
	c.legs = legs
}

// Session returns a copy of the current session
func (c *Controller) Session() Session {
	return c.session.clone()
}

// Waypoints returns the full ordered waypoint list, start included
func (c *Controller) Waypoints() []Waypoint {
	return append([]Waypoint(nil), c.waypoints...)
}

// Targets returns the waypoints after the start
func (c *Controller) Targets() []Waypoint {
	return append([]Waypoint(nil), c.targets...)
}

// Thresholds returns the radii in use
func (c *Controller) Thresholds() Thresholds {
	return c.thresholds
}

// CurrentTarget returns the waypoint the agent is heading to: the start in
// PRE_ROUTE, the active target in IN_ROUTE, nothing once completed.
func (c *Controller) CurrentTarget() (Waypoint, bool) {
	switch c.session.Phase {
	case PreRoute:
		if len(c.waypoints) == 0 {
			return nil, false
		}
		return c.waypoints[0], true
	case InRoute:
		if c.session.ActiveTargetIndex < len(c.targets) {
			return c.targets[c.session.ActiveTargetIndex], true
		}
	}
	return nil, false
}

// CurrentKey identifies the leg the session needs right now
func (c *Controller) CurrentKey() (LegKey, bool) {
	target, ok := c.CurrentTarget()
	if !ok {
		return LegKey{}, false
	}
	return LegKey{TargetID: target.ID(), Phase: c.session.Phase}, true
}

// Progress reports session progress
func (c *Controller) Progress() Progress {
	p := Progress{
		Phase:   c.session.Phase,
		Reached: c.session.LastReachedIndex + 1,
		Total:   len(c.targets),
	}

	switch c.session.Phase {
	case PreRoute:
		if initial := c.session.InitialDistanceToStart; initial != nil && *initial > 0 {
			total := *initial
			p.Fraction = clamp01(1 - c.lastDistanceToStart/total)
		}
	case InRoute:
		if p.Total > 0 {
			p.Fraction = clamp01(float64(p.Reached) / float64(p.Total))
		}
	case Completed:
		p.Fraction = 1
	}
	return p
}

// Update evaluates one position and returns the events it caused, in order.
// An empty waypoint list never leaves PRE_ROUTE.
func (c *Controller) Update(pos geo.Position) []Event {
	if len(c.waypoints) == 0 {
		return nil
	}

	switch c.session.Phase {
	case PreRoute:
		return c.updatePreRoute(pos.Point)
	case InRoute:
		return c.updateInRoute(pos.Point)
	}
	return nil
}

func (c *Controller) updatePreRoute(p geo.Point) []Event {
	d := geo.Distance(p, c.waypoints[0].Point())
	c.lastDistanceToStart = d
	if c.session.InitialDistanceToStart == nil {
		c.session.InitialDistanceToStart = &d
	}

	if d >= c.thresholds.ArrivalStart {
		return nil
	}

	c.session.InitialDistanceToStart = nil
	events := c.setPhase(nil, InRoute)
	if len(c.targets) == 0 {
		events = c.setPhase(events, Completed)
	}
	return events
}

func (c *Controller) updateInRoute(p geo.Point) []Event {
	active := c.session.ActiveTargetIndex

	// Current target first, then the one after it in case a detection was missed
	for i := active; i <= active+1 && i < len(c.targets); i++ {
		if c.candidateReached(p, i) {
			return c.arrive(i)
		}
	}
	return nil
}

// candidateReached applies the distance check and, when leg geometry exists,
// the path adherence check. Without geometry the strict radius substitutes.
func (c *Controller) candidateReached(p geo.Point, i int) bool {
	target := c.targets[i]
	d := geo.Distance(p, target.Point())
	if d >= c.thresholds.Arrival {
		return false
	}

	if leg, ok := c.legFor(target.ID()); ok {
		return c.matcher.IsOnPath(p, leg.Path, c.thresholds.OnPathTolerance)
	}
	return d < c.thresholds.StrictArrival
}

func (c *Controller) legFor(targetID string) (*routing.Leg, bool) {
	if c.legs == nil {
		return nil, false
	}
	leg, ok := c.legs.Leg(targetID)
	if !ok || leg == nil || len(leg.Path) < 2 {
		return nil, false
	}
	return leg, true
}

// arrive fires arrival for target i, implicitly completing any skipped
// targets before it. Each index fires at most once per session.
func (c *Controller) arrive(i int) []Event {
	var events []Event

	for j := c.session.LastReachedIndex + 1; j < i; j++ {
		events = append(events, arrivedEvent(c.session.ID, j, c.targets[j], true))
		c.session.LastReachedIndex = j
	}

	if c.session.LastReachedIndex >= i {
		return events
	}
	events = append(events, arrivedEvent(c.session.ID, i, c.targets[i], false))
	c.session.LastReachedIndex = i
	c.session.LastOpenedTargetID = c.targets[i].ID()

	if i == len(c.targets)-1 {
		c.advanceTo(i)
		return c.setPhase(events, Completed)
	}
	c.advanceTo(i + 1)
	return events
}

func (c *Controller) advanceTo(index int) {
	if index > c.session.ActiveTargetIndex {
		c.session.ActiveTargetIndex = index
	}
}

// setPhase moves the session forward; backwards moves are ignored
func (c *Controller) setPhase(events []Event, phase Phase) []Event {
	if phase.rank() <= c.session.Phase.rank() {
		return events
	}
	c.session.Phase = phase
	return append(events, phaseEvent(c.session.ID, phase))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
