package navigation

// Phase is the coarse stage of a navigation session
type Phase string

const (
	PreRoute  Phase = "PRE_ROUTE" // heading to the start waypoint
	InRoute   Phase = "IN_ROUTE"  // progressing target to target
	Completed Phase = "COMPLETED" // terminal
)

// rank orders phases so transitions can be checked for direction
func (p Phase) rank() int {
	switch p {
	case PreRoute:
		return 0
	case InRoute:
		return 1
	case Completed:
		return 2
	}
	return -1
}

// LegKey identifies the leg the session currently needs. A change in
// either field makes outstanding leg requests stale.
type LegKey struct {
	TargetID string `json:"target_id"`
	Phase    Phase  `json:"phase"`
}
