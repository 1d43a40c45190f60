package navigation

import (
	"fmt"
	"math"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// Instruction is the guidance shown to the traveller for one position
type Instruction struct {
	// BearingOnly is set when no turn list is available and guidance
	// falls back to a straight-line heading toward the target
	BearingOnly bool `json:"bearing_only"`

	BearingDegrees   float64 `json:"bearing_degrees"`
	DistanceToTarget float64 `json:"distance_to_target"`

	Turn              *routing.Turn `json:"turn,omitempty"`
	DistanceToTurn    float64       `json:"distance_to_turn,omitempty"`
	RemainingInLeg    float64       `json:"remaining_in_leg,omitempty"`
	CompletedInLegPct float64       `json:"completed_in_leg_pct,omitempty"`
}

// Guide builds the instruction for pos heading to target. The upcoming
// maneuver is the one after the maneuver closest to pos.
func Guide(pos geo.Point, leg *routing.Leg, target geo.Point) Instruction {
	in := Instruction{
		BearingDegrees:   geo.Bearing(pos, target),
		DistanceToTarget: geo.Distance(pos, target),
	}

	if leg == nil || len(leg.Turns) == 0 {
		in.BearingOnly = true
		return in
	}

	closest := 0
	best := math.Inf(1)
	for i, turn := range leg.Turns {
		if d := geo.Distance(pos, turn.Location); d < best {
			best = d
			closest = i
		}
	}

	next := min(closest+1, len(leg.Turns)-1)
	turn := leg.Turns[next]
	in.Turn = &turn
	in.DistanceToTurn = geo.Distance(pos, turn.Location)

	remaining := in.DistanceToTurn
	total := 0.0
	for i, t := range leg.Turns {
		total += t.DistanceMeters
		if i > next {
			remaining += t.DistanceMeters
		}
	}
	in.RemainingInLeg = remaining
	if total > 0 {
		in.CompletedInLegPct = 100 * clamp01((total-remaining)/total)
	}
	return in
}

// Text renders the instruction as a short English sentence
func (in Instruction) Text() string {
	if in.BearingOnly || in.Turn == nil {
		return fmt.Sprintf("Head %s for %s", compassPoint(in.BearingDegrees), formatDistance(in.DistanceToTarget))
	}

	t := in.Turn
	switch {
	case t.Type == "arrive":
		return "Arrive at destination"
	case t.Type == "depart":
		return fmt.Sprintf("Head %s on %s", orDefault(t.Modifier, "out"), orDefault(t.StreetName, "path"))
	case t.StreetName == "":
		return fmt.Sprintf("%s (%s)", orDefault(t.Modifier, t.Type), formatDistance(in.DistanceToTurn))
	}
	return fmt.Sprintf("%s %s onto %s", t.Type, t.Modifier, t.StreetName)
}

func compassPoint(bearing float64) string {
	points := []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}
	return points[int(math.Round(bearing/45))%len(points)]
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
