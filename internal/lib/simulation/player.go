package simulation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	prefaberrors "github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"go.uber.org/zap"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// BaseTick is the cadence at which synthetic positions are produced
const BaseTick = 50 * time.Millisecond

// Base travel speeds in km/h
const (
	WalkingSpeedKmh = 5.0
	CyclingSpeedKmh = 15.0
)

// ErrUnsupportedSpeed is returned for multipliers outside SupportedMultipliers
var ErrUnsupportedSpeed = errors.New("unsupported speed multiplier")

// SupportedMultipliers lists the accepted replay speeds
var SupportedMultipliers = []int{1, 2, 5}

// State is the externally visible replay state. It resets whenever a new
// path is loaded.
type State struct {
	IsActive        bool `json:"is_active"`
	SpeedMultiplier int  `json:"speed_multiplier"`
	CursorIndex     int  `json:"cursor_index"`
}

// Player replays a leg path as a stream of positions. It never touches
// navigation state: when the path runs out it clears itself and reports
// exhaustion through the callback.
type Player struct {
	mu sync.Mutex

	path   []geo.Point
	offset float64 // meters covered along the segment starting at state.CursorIndex
	state  State

	speedMPS float64
	tick     time.Duration
	now      func() time.Time

	onPosition  func(geo.Position)
	onExhausted func()

	logger *zap.SugaredLogger
}

// NewPlayer creates a stopped player moving at the base speed of profile
func NewPlayer(profile routing.Profile, logger *zap.SugaredLogger) *Player {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Player{
		state:    State{SpeedMultiplier: 1},
		speedMPS: BaseSpeed(profile),
		tick:     BaseTick,
		now:      time.Now,
		logger:   logger,
	}
}

// BaseSpeed returns the 1x replay speed for profile in meters per second
func BaseSpeed(profile routing.Profile) float64 {
	if profile == routing.Cycling {
		return CyclingSpeedKmh * 1000 / 3600
	}
	return WalkingSpeedKmh * 1000 / 3600
}

// OnPosition registers the receiver of synthetic positions
func (p *Player) OnPosition(fn func(geo.Position)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPosition = fn
}

// OnExhausted registers the callback invoked after the final point of a path
func (p *Player) OnExhausted(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExhausted = fn
}

// SetClock overrides the timestamp source for emitted positions
func (p *Player) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// SetProfile switches the base speed
func (p *Player) SetProfile(profile routing.Profile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speedMPS = BaseSpeed(profile)
}

// Load replaces the path and rewinds to its first point. Activity and
// speed are kept.
func (p *Player) Load(path []geo.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = append([]geo.Point(nil), path...)
	p.offset = 0
	p.state.CursorIndex = 0
	p.logger.Debugw("Simulation path loaded", "points", len(path), "length_m", geo.PathLength(path))
}

// HasPath reports whether a replayable path is loaded
func (p *Player) HasPath() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.path) >= 2
}

// Start activates replay
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.IsActive = true
}

// Stop pauses replay without losing the cursor
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.IsActive = false
}

// SetSpeed changes the multiplier; only SupportedMultipliers are accepted
func (p *Player) SetSpeed(multiplier int) error {
	for _, m := range SupportedMultipliers {
		if m == multiplier {
			p.mu.Lock()
			p.state.SpeedMultiplier = multiplier
			p.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %dx", ErrUnsupportedSpeed, multiplier)
}

// State returns a copy of the replay state
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Advance moves the cursor by the distance covered in elapsed and emits
// the resulting position. The final point of a path is always emitted
// before exhaustion is reported.
func (p *Player) Advance(elapsed time.Duration) (geo.Position, bool) {
	p.mu.Lock()
	if !p.state.IsActive || len(p.path) < 2 {
		p.mu.Unlock()
		return geo.Position{}, false
	}

	remaining := p.speedMPS * float64(p.state.SpeedMultiplier) * elapsed.Seconds()
	last := len(p.path) - 1
	for p.state.CursorIndex < last {
		from, to := p.path[p.state.CursorIndex], p.path[p.state.CursorIndex+1]
		segLen := geo.Distance(from, to)
		if p.offset+remaining < segLen {
			p.offset += remaining
			break
		}
		remaining -= segLen - p.offset
		p.state.CursorIndex++
		p.offset = 0
	}

	var (
		pos       geo.Position
		exhausted bool
	)
	if p.state.CursorIndex >= last {
		pos = p.position(p.path[last], geo.Bearing(p.path[last-1], p.path[last]))
		exhausted = true
		p.path = nil
		p.offset = 0
		p.state.CursorIndex = 0
		p.state.IsActive = false
	} else {
		from, to := p.path[p.state.CursorIndex], p.path[p.state.CursorIndex+1]
		t := 0.0
		if segLen := geo.Distance(from, to); segLen > 0 {
			t = p.offset / segLen
		}
		pos = p.position(geo.Interpolate(from, to, t), geo.Bearing(from, to))
	}

	onPosition, onExhausted := p.onPosition, p.onExhausted
	p.mu.Unlock()

	if onPosition != nil {
		onPosition(pos)
	}
	if exhausted {
		p.logger.Debugw("Simulation path exhausted")
		if onExhausted != nil {
			onExhausted()
		}
	}
	return pos, true
}

func (p *Player) position(point geo.Point, heading float64) geo.Position {
	return geo.Position{Point: point, Timestamp: p.now()}.WithHeading(heading)
}

// Run advances the player every BaseTick until ctx is done
func (p *Player) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Simulation: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Advance(p.tick)
		}
	}
}
