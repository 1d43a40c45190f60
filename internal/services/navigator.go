package services

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

	"github.com/Schepie/CityExplorer-sub000/internal/lib/camera"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/simulation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/trace"
)

// ErrQueueFull is returned when the navigator cannot accept another position
var ErrQueueFull = errors.New("position queue full")

// ErrNotRunning is returned by commands issued while the navigator loop is stopped
var ErrNotRunning = errors.New("navigator not running")

// DefaultRerouteInterval is the minimum gap between off-route refetches
const DefaultRerouteInterval = 10 * time.Second

// NavigatorConfig holds the navigator's tunables
type NavigatorConfig struct {
	Profile         routing.Profile
	Thresholds      navigation.Thresholds
	RerouteInterval time.Duration
	Camera          camera.Options

	// Viewport defaults to a phone-sized Mercator viewport on the start waypoint
	Viewport camera.Viewport
}

// Snapshot is a point-in-time copy of navigator state
type Snapshot struct {
	Session      navigation.Session        `json:"session"`
	Progress     navigation.Progress       `json:"progress"`
	Target       *navigation.WaypointSpec  `json:"target,omitempty"`
	TargetIndex  int                       `json:"target_index"`
	Waypoints    []navigation.WaypointSpec `json:"waypoints"`
	Position     *geo.Position             `json:"position,omitempty"`
	Guidance     *navigation.Instruction   `json:"guidance,omitempty"`
	GuidanceText string                    `json:"guidance_text,omitempty"`
	Following    bool                      `json:"following"`
	Nearby       bool                      `json:"nearby"`
	OffRoute     bool                      `json:"off_route"`
	Simulating   bool                      `json:"simulating"`
	Simulation   simulation.State          `json:"simulation"`
	Profile      routing.Profile           `json:"profile"`
}

type positionUpdate struct {
	pos       geo.Position
	simulated bool
	exhausted bool // the replayed leg ran out; pos is unset
}

type command struct {
	apply func(ctx context.Context) error
	reply chan error
}

// Navigator wires the navigation pipeline. A single goroutine owns the
// controller and every component it feeds; other goroutines talk to it
// through channels.
type Navigator struct {
	controller *navigation.Controller
	fetcher    *LegFetcher
	proximity  *navigation.ProximityTracker
	camera     *camera.Controller
	player     *simulation.Player
	recorder   *trace.Recorder
	bus        *EventBus
	matcher    routing.PathMatcher
	logger     *zap.SugaredLogger
	now        func() time.Time

	profile         routing.Profile
	thresholds      navigation.Thresholds
	rerouteInterval time.Duration

	positions chan positionUpdate
	commands  chan command

	// Loop state, owned by the loop goroutine
	key         navigation.LegKey
	hasKey      bool
	lastPos     *geo.Position
	offRoute    bool
	lastReroute time.Time
	simulating  bool

	snapMu   sync.RWMutex
	snapshot Snapshot

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc
}

// NewNavigator creates a navigator over waypoints
func NewNavigator(waypoints []navigation.Waypoint, fetcher *LegFetcher, bus *EventBus, cfg NavigatorConfig, logger *zap.SugaredLogger) *Navigator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Profile == "" {
		cfg.Profile = routing.Walking
	}
	if cfg.Thresholds == (navigation.Thresholds{}) {
		cfg.Thresholds = navigation.DefaultThresholds()
	}
	if cfg.RerouteInterval <= 0 {
		cfg.RerouteInterval = DefaultRerouteInterval
	}
	if cfg.Camera == (camera.Options{}) {
		cfg.Camera = camera.DefaultOptions()
	}
	if cfg.Viewport == nil {
		var center geo.Point
		if len(waypoints) > 0 {
			center = waypoints[0].Point()
		}
		cfg.Viewport = camera.NewMercatorViewport(390, 844, center, 16)
	}

	n := &Navigator{
		controller:      navigation.NewController(waypoints, cfg.Thresholds, fetcher),
		fetcher:         fetcher,
		proximity:       navigation.NewProximityTracker(cfg.Thresholds),
		camera:          camera.NewController(cfg.Viewport, cfg.Camera),
		player:          simulation.NewPlayer(cfg.Profile, logger),
		recorder:        trace.NewRecorder(),
		bus:             bus,
		matcher:         routing.NewPathMatcher(),
		logger:          logger,
		now:             time.Now,
		profile:         cfg.Profile,
		thresholds:      cfg.Thresholds,
		rerouteInterval: cfg.RerouteInterval,
		positions:       make(chan positionUpdate, 64),
		commands:        make(chan command),
	}

	n.player.OnPosition(func(pos geo.Position) {
		n.enqueue(positionUpdate{pos: pos, simulated: true})
	})
	n.player.OnExhausted(func() {
		n.enqueue(positionUpdate{exhausted: true})
	})

	n.refreshSnapshot()
	return n
}

// Bus returns the event bus
func (n *Navigator) Bus() *EventBus {
	return n.bus
}

// Recorder returns the trace recorder
func (n *Navigator) Recorder() *trace.Recorder {
	return n.recorder
}

// Start runs the navigator loop and the simulation ticker in the background
func (n *Navigator) Start(ctx context.Context) error {
	n.runMu.Lock()
	defer n.runMu.Unlock()

	if n.running {
		return nil // Already running
	}
	n.running = true
	n.stopChan = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	go n.player.Run(runCtx)
	go n.loop(runCtx, n.stopChan)

	n.logger.Infow("Navigator started", "profile", n.profile, "waypoints", len(n.controller.Waypoints()))
	return nil
}

// Stop halts the navigator loop
func (n *Navigator) Stop() {
	n.runMu.Lock()
	defer n.runMu.Unlock()

	if !n.running {
		return
	}
	n.running = false
	close(n.stopChan)
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.logger.Infow("Navigator stopped")
}

// Run processes inputs on the calling goroutine until ctx is done. Unlike
// Start it does not tick the simulation player.
func (n *Navigator) Run(ctx context.Context) {
	n.runMu.Lock()
	if n.running {
		n.runMu.Unlock()
		return
	}
	n.running = true
	stop := make(chan struct{})
	n.stopChan = stop
	n.runMu.Unlock()

	n.loop(ctx, stop)
}

func (n *Navigator) loop(ctx context.Context, stop chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := prefaberrors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Navigator: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
		n.runMu.Lock()
		if n.stopChan == stop && n.running {
			n.running = false
			close(stop)
		}
		n.runMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			n.logger.Debugw("Navigator stopping due to context cancellation")
			return
		case <-stop:
			return
		case u := <-n.positions:
			if u.exhausted {
				n.handleExhausted()
			} else {
				n.handlePosition(ctx, u)
			}
		case r := <-n.fetcher.Results():
			n.handleLegResult(r)
		case cmd := <-n.commands:
			err := cmd.apply(ctx)
			n.refreshSnapshot()
			if cmd.reply != nil {
				cmd.reply <- err
			}
		}
	}
}

// SubmitPosition queues a live position without blocking
func (n *Navigator) SubmitPosition(pos geo.Position) error {
	if !pos.IsValid() {
		return fmt.Errorf("invalid position %.6f,%.6f", pos.Latitude, pos.Longitude)
	}
	select {
	case n.positions <- positionUpdate{pos: pos}:
		return nil
	default:
		return ErrQueueFull
	}
}

// enqueue delivers simulated input, waiting while the loop is busy
func (n *Navigator) enqueue(u positionUpdate) {
	n.runMu.Lock()
	stop := n.stopChan
	n.runMu.Unlock()

	select {
	case n.positions <- u:
	case <-stop:
	}
}

// do runs fn on the loop goroutine and waits for its result
func (n *Navigator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	n.runMu.Lock()
	running, stop := n.running, n.stopChan
	n.runMu.Unlock()
	if !running {
		return ErrNotRunning
	}

	cmd := command{apply: fn, reply: make(chan error, 1)}
	select {
	case n.commands <- cmd:
	case <-stop:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyView performs an explicit camera action
func (n *Navigator) ApplyView(ctx context.Context, action camera.ViewAction) error {
	return n.do(ctx, func(context.Context) error {
		wasFollowing := n.camera.Following()
		if _, err := n.camera.Apply(action, n.routePoints()); err != nil {
			return err
		}
		n.publishFollow(wasFollowing)
		return nil
	})
}

// Gesture reports a user map gesture, which pauses follow mode
func (n *Navigator) Gesture(ctx context.Context, g camera.Gesture) error {
	return n.do(ctx, func(context.Context) error {
		wasFollowing := n.camera.Following()
		n.camera.OnUserGesture(g)
		n.publishFollow(wasFollowing)
		return nil
	})
}

// Recenter resumes follow mode
func (n *Navigator) Recenter(ctx context.Context) error {
	return n.do(ctx, func(context.Context) error {
		wasFollowing := n.camera.Following()
		n.camera.Recenter()
		n.publishFollow(wasFollowing)
		return nil
	})
}

// SetSimulation toggles replay of the active leg. speed 0 keeps the current multiplier.
func (n *Navigator) SetSimulation(ctx context.Context, enabled bool, speed int) error {
	return n.do(ctx, func(ctx context.Context) error {
		if speed != 0 {
			if err := n.player.SetSpeed(speed); err != nil {
				return err
			}
		}

		if !enabled {
			n.simulating = false
			n.player.Stop()
			return nil
		}
		if n.simulating {
			return nil
		}
		n.simulating = true

		// A paused replay resumes from its cursor
		if n.player.HasPath() {
			n.player.Start()
			return nil
		}
		if leg, ok := n.activeLeg(); ok {
			n.player.Load(leg.Path)
			n.player.Start()
			return nil
		}

		// Nothing to replay yet: place the agent on the start so the first leg is requested
		if n.lastPos == nil {
			if start, ok := n.controller.CurrentTarget(); ok && n.controller.Session().Phase == navigation.PreRoute {
				n.handlePosition(ctx, positionUpdate{
					pos:       geo.Position{Point: start.Point(), Timestamp: n.now()},
					simulated: true,
				})
			}
		}
		return nil
	})
}

// ReplaceRoute swaps the waypoint list and starts a fresh session
func (n *Navigator) ReplaceRoute(ctx context.Context, waypoints []navigation.Waypoint) error {
	return n.do(ctx, func(ctx context.Context) error {
		n.player.Stop()
		n.player.Load(nil)
		n.fetcher.Reset()
		n.controller.Reset(waypoints)
		n.proximity.Reset()
		n.recorder.Reset()
		n.hasKey, n.offRoute = false, false
		n.lastReroute = time.Time{}

		n.logger.Infow("Route replaced", "session", n.controller.Session().ID, "waypoints", len(waypoints))

		if n.lastPos != nil {
			n.handlePosition(ctx, positionUpdate{pos: *n.lastPos, simulated: n.simulating})
		}
		return nil
	})
}

// Snapshot returns a copy of the latest navigator state
func (n *Navigator) Snapshot() Snapshot {
	n.snapMu.RLock()
	defer n.snapMu.RUnlock()

	s := n.snapshot
	s.Waypoints = append([]navigation.WaypointSpec(nil), s.Waypoints...)
	if s.Session.InitialDistanceToStart != nil {
		d := *s.Session.InitialDistanceToStart
		s.Session.InitialDistanceToStart = &d
	}
	return s
}

// ActiveLeg returns the accepted leg toward the current target, if any
func (n *Navigator) ActiveLeg() (*routing.Leg, bool) {
	snap := n.Snapshot()
	if snap.Target == nil {
		return nil, false
	}
	leg, ok := n.fetcher.Leg(snap.Target.ID)
	return leg.Clone(), ok
}

func (n *Navigator) handlePosition(ctx context.Context, u positionUpdate) {
	pos := u.pos
	if pos.Timestamp.IsZero() {
		pos.Timestamp = n.now()
	}
	n.lastPos = &pos
	session := n.controller.Session()

	n.recorder.Record(pos)

	events := n.controller.Update(pos)
	n.bus.Publish(events...)
	for _, ev := range events {
		n.logger.Infow("Navigation event", "kind", ev.Kind, "session", session.ID, "target_index", ev.TargetIndex, "phase", ev.Phase)
	}

	n.syncLeg(ctx, pos.Point)

	target, _ := n.controller.CurrentTarget()
	n.bus.Publish(n.proximity.Update(session.ID, n.targetIndex(), target, pos.Point)...)

	if !u.simulated {
		n.checkOffRoute(ctx, pos.Point)
	}

	var path []geo.Point
	if leg, ok := n.activeLeg(); ok {
		path = leg.Path
	}
	n.camera.OnPosition(pos, path)

	n.refreshSnapshot()
}

// syncLeg requests a new leg when the (target, phase) pair changed
func (n *Navigator) syncLeg(ctx context.Context, from geo.Point) {
	key, ok := n.controller.CurrentKey()
	if !ok {
		n.hasKey = false
		return
	}
	if n.hasKey && key == n.key {
		return
	}

	n.key, n.hasKey = key, true
	n.offRoute = false
	n.fetcher.SetCurrent(key)

	target, _ := n.controller.CurrentTarget()
	if n.fetcher.Request(ctx, key, from, target, n.profile) {
		n.logger.Debugw("Requested leg", "target", key.TargetID, "phase", key.Phase)
	}
}

// checkOffRoute flags live positions beyond the off-route radius of the
// active leg and refetches at most once per reroute interval
func (n *Navigator) checkOffRoute(ctx context.Context, p geo.Point) {
	if n.controller.Session().Phase != navigation.InRoute {
		return
	}
	leg, ok := n.activeLeg()
	if !ok {
		return
	}
	d, err := n.matcher.DistanceToPath(p, leg.Path)
	if err != nil {
		return
	}

	if d <= n.thresholds.OffRoute {
		n.offRoute = false
		return
	}

	if !n.offRoute {
		n.offRoute = true
		spec := n.targetSpec()
		n.bus.Publish(navigation.Event{
			Kind:           navigation.EventOffRoute,
			SessionID:      n.controller.Session().ID,
			TargetIndex:    n.targetIndex(),
			Waypoint:       spec,
			DistanceMeters: d,
		})
		n.logger.Infow("Off route", "distance_m", d, "target", n.key.TargetID)
	}

	now := n.now()
	if !n.lastReroute.IsZero() && now.Sub(n.lastReroute) < n.rerouteInterval {
		return
	}
	n.lastReroute = now

	target, _ := n.controller.CurrentTarget()
	n.fetcher.Request(ctx, n.key, p, target, n.profile)
}

func (n *Navigator) handleLegResult(r LegResult) {
	// Results buffered before a route replacement belong to the old route
	if r.Generation != n.fetcher.Generation() {
		n.logger.Debugw("Dropping leg from a replaced route", "target", r.Key.TargetID, "phase", r.Key.Phase)
		return
	}
	if r.Err != nil {
		// Guidance degrades to bearing-only; the next key change retries
		n.refreshSnapshot()
		return
	}

	key, ok := n.controller.CurrentKey()
	if !ok || key != r.Key {
		n.logger.Debugw("Dropping stale leg", "target", r.Key.TargetID, "phase", r.Key.Phase)
		return
	}

	// Adherence is judged against the new geometry from here on
	n.offRoute = false
	n.recorder.RecordLeg(r.Leg)
	n.bus.Publish(navigation.Event{
		Kind:        navigation.EventLegPathUpdated,
		SessionID:   n.controller.Session().ID,
		TargetIndex: n.targetIndex(),
		Waypoint:    n.targetSpec(),
		Path:        append([]geo.Point(nil), r.Leg.Path...),
		Turns:       append([]routing.Turn(nil), r.Leg.Turns...),
	})

	if n.simulating {
		n.player.Load(r.Leg.Path)
		n.player.Start()
	}
	n.refreshSnapshot()
}

func (n *Navigator) handleExhausted() {
	n.bus.Publish(navigation.Event{
		Kind:        navigation.EventLegExhausted,
		SessionID:   n.controller.Session().ID,
		TargetIndex: n.targetIndex(),
	})
	n.refreshSnapshot()
}

func (n *Navigator) publishFollow(wasFollowing bool) {
	if following := n.camera.Following(); following != wasFollowing {
		n.bus.Publish(navigation.Event{
			Kind:      navigation.EventFollowStateChanged,
			SessionID: n.controller.Session().ID,
			Following: following,
		})
	}
}

// activeLeg returns the leg for the current key once it has been accepted
func (n *Navigator) activeLeg() (*routing.Leg, bool) {
	target, ok := n.controller.CurrentTarget()
	if !ok {
		return nil, false
	}
	leg, ok := n.fetcher.Leg(target.ID())
	if !ok || len(leg.Path) < 2 {
		return nil, false
	}
	return leg, true
}

// targetIndex is the active target index, or -1 while heading to the start
func (n *Navigator) targetIndex() int {
	if n.controller.Session().Phase == navigation.PreRoute {
		return -1
	}
	return n.controller.Session().ActiveTargetIndex
}

// routePoints is everything a route fit should include
func (n *Navigator) routePoints() []geo.Point {
	var points []geo.Point
	for _, w := range n.controller.Waypoints() {
		points = append(points, w.Point())
	}
	if leg, ok := n.activeLeg(); ok {
		points = append(points, leg.Path...)
	}
	if n.lastPos != nil {
		points = append(points, n.lastPos.Point)
	}
	return points
}

func (n *Navigator) refreshSnapshot() {
	s := Snapshot{
		Session:     n.controller.Session(),
		Progress:    n.controller.Progress(),
		TargetIndex: n.targetIndex(),
		Following:   n.camera.Following(),
		Nearby:      n.proximity.Nearby(),
		OffRoute:    n.offRoute,
		Simulating:  n.simulating,
		Simulation:  n.player.State(),
		Profile:     n.profile,
	}
	for _, w := range n.controller.Waypoints() {
		s.Waypoints = append(s.Waypoints, navigation.Describe(w))
	}
	if n.lastPos != nil {
		pos := *n.lastPos
		s.Position = &pos
	}

	if target, ok := n.controller.CurrentTarget(); ok {
		spec := navigation.Describe(target)
		s.Target = &spec
		if n.lastPos != nil {
			var leg *routing.Leg
			if l, ok := n.activeLeg(); ok {
				leg = l
			}
			in := navigation.Guide(n.lastPos.Point, leg, target.Point())
			s.Guidance = &in
			s.GuidanceText = in.Text()
		}
	}

	n.snapMu.Lock()
	n.snapshot = s
	n.snapMu.Unlock()
}

func (n *Navigator) targetSpec() *navigation.WaypointSpec {
	target, ok := n.controller.CurrentTarget()
	if !ok {
		return nil
	}
	spec := navigation.Describe(target)
	return &spec
}
