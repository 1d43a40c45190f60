package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

var (
	startPoint = geo.Point{Latitude: 52.000, Longitude: 4.000}
	pointA     = geo.Point{Latitude: 52.001, Longitude: 4.001}
	pointB     = geo.Point{Latitude: 52.002, Longitude: 4.002}
)

func testWaypoints() []navigation.Waypoint {
	return []navigation.Waypoint{
		navigation.NewStartPoint("start", "Start", startPoint),
		navigation.NewRoutePoi("a", "A", "museum", pointA),
		navigation.NewRoutePoi("b", "B", "park", pointB),
	}
}

// stubRouter returns a straight two-point leg that stops a little short of
// the destination, the way a routing service snaps to the nearest way
type stubRouter struct {
	calls atomic.Int32
	err   error
	gate  chan struct{} // when set, Route waits for a value before answering
}

func (r *stubRouter) Route(ctx context.Context, origin, dest geo.Point, profile routing.Profile) (*routing.Leg, error) {
	r.calls.Add(1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	short := geo.Interpolate(origin, dest, 0.98)
	return &routing.Leg{
		Path:           []geo.Point{origin, short},
		DistanceMeters: geo.Distance(origin, short),
	}, nil
}

func waitForResult(t *testing.T, f *LegFetcher) LegResult {
	t.Helper()
	select {
	case r := <-f.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for leg result")
		return LegResult{}
	}
}

func TestLegFetcher_DeliversLegWithExactTerminal(t *testing.T) {
	router := &stubRouter{}
	f := NewLegFetcher(router, nil, nil)
	key := navigation.LegKey{TargetID: "a", Phase: navigation.InRoute}
	target := navigation.NewRoutePoi("a", "A", "museum", pointA)

	f.SetCurrent(key)
	require.True(t, f.Request(context.Background(), key, startPoint, target, routing.Walking))

	r := waitForResult(t, f)
	require.NoError(t, r.Err)
	require.NotNil(t, r.Leg)
	assert.Equal(t, key, r.Key)
	assert.Equal(t, "a", r.Leg.TargetID)
	assert.Equal(t, pointA, r.Leg.Path[len(r.Leg.Path)-1], "terminal point is the waypoint itself")

	leg, ok := f.Leg("a")
	require.True(t, ok)
	assert.Equal(t, r.Leg, leg)
}

func TestLegFetcher_OneOutstandingRequestPerKey(t *testing.T) {
	router := &stubRouter{gate: make(chan struct{})}
	f := NewLegFetcher(router, nil, nil)
	key := navigation.LegKey{TargetID: "a", Phase: navigation.InRoute}
	target := navigation.NewRoutePoi("a", "A", "museum", pointA)
	f.SetCurrent(key)

	assert.True(t, f.Request(context.Background(), key, startPoint, target, routing.Walking))
	assert.False(t, f.Request(context.Background(), key, startPoint, target, routing.Walking))

	close(router.gate)
	waitForResult(t, f)

	// Once finished the key may be requested again
	assert.True(t, f.Request(context.Background(), key, startPoint, target, routing.Walking))
	waitForResult(t, f)
}

func TestLegFetcher_DiscardsStaleResults(t *testing.T) {
	router := &stubRouter{gate: make(chan struct{})}
	f := NewLegFetcher(router, nil, nil)
	old := navigation.LegKey{TargetID: "a", Phase: navigation.InRoute}
	f.SetCurrent(old)
	f.Request(context.Background(), old, startPoint, navigation.NewRoutePoi("a", "A", "", pointA), routing.Walking)

	f.SetCurrent(navigation.LegKey{TargetID: "b", Phase: navigation.InRoute})
	close(router.gate)

	select {
	case r := <-f.Results():
		t.Fatalf("unexpected result for %v", r.Key)
	case <-time.After(100 * time.Millisecond):
	}
	_, ok := f.Leg("a")
	assert.False(t, ok)
}

func TestLegFetcher_FailureYieldsNilLeg(t *testing.T) {
	router := &stubRouter{err: errors.New("service unavailable")}
	f := NewLegFetcher(router, nil, nil)
	key := navigation.LegKey{TargetID: "a", Phase: navigation.InRoute}
	f.SetCurrent(key)
	f.Request(context.Background(), key, startPoint, navigation.NewRoutePoi("a", "A", "", pointA), routing.Walking)

	r := waitForResult(t, f)
	assert.Error(t, r.Err)
	assert.Nil(t, r.Leg)
	_, ok := f.Leg("a")
	assert.False(t, ok)
	assert.Equal(t, int32(1), router.calls.Load(), "no retry loop")
}

func TestLegFetcher_ResetAllowsSameKey(t *testing.T) {
	router := &stubRouter{gate: make(chan struct{})}
	f := NewLegFetcher(router, nil, nil)
	key := navigation.LegKey{TargetID: "a", Phase: navigation.InRoute}
	target := navigation.NewRoutePoi("a", "A", "", pointA)
	f.SetCurrent(key)
	f.Request(context.Background(), key, startPoint, target, routing.Walking)

	f.Reset()
	f.SetCurrent(key)
	assert.True(t, f.Request(context.Background(), key, startPoint, target, routing.Walking))

	close(router.gate)
	r := waitForResult(t, f)
	assert.NoError(t, r.Err)

	// Only the post-reset request is delivered
	select {
	case extra := <-f.Results():
		t.Fatalf("unexpected second result %v", extra.Key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventBus_FanOut(t *testing.T) {
	bus := NewEventBus(2, nil)
	first, cancelFirst := bus.Subscribe()
	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(navigation.Event{Kind: navigation.EventArrived}, navigation.Event{Kind: navigation.EventPhaseChanged})
	assert.Equal(t, navigation.EventArrived, (<-first).Kind)
	assert.Equal(t, navigation.EventPhaseChanged, (<-first).Kind)
	assert.Equal(t, navigation.EventArrived, (<-second).Kind)

	cancelFirst()
	cancelFirst()
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, bus.Subscribers())

	// A full subscriber misses events instead of blocking the publisher
	bus.Publish(navigation.Event{Kind: navigation.EventOffRoute}, navigation.Event{Kind: navigation.EventOffRoute})
	assert.Len(t, second, 2)

	bus.Close()
	late, _ := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

type eventLog struct {
	mu     sync.Mutex
	events []navigation.Event
}

func (l *eventLog) collect(ch <-chan navigation.Event) {
	for ev := range ch {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	}
}

func (l *eventLog) count(kind navigation.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) find(kind navigation.EventKind, match func(navigation.Event) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Kind == kind && (match == nil || match(ev)) {
			return true
		}
	}
	return false
}

func newTestNavigator(t *testing.T, router routing.Router) (*Navigator, *eventLog, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := NewEventBus(256, nil)
	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)
	log := &eventLog{}
	go log.collect(events)

	n := NewNavigator(testWaypoints(), NewLegFetcher(router, nil, nil), bus, NavigatorConfig{}, nil)
	go n.Run(ctx)
	require.Eventually(t, func() bool {
		n.runMu.Lock()
		defer n.runMu.Unlock()
		return n.running
	}, time.Second, time.Millisecond)

	return n, log, ctx
}

func submit(t *testing.T, n *Navigator, p geo.Point) {
	t.Helper()
	require.NoError(t, n.SubmitPosition(geo.Position{Point: p, Timestamp: time.Now()}))
}

func TestNavigator_LiveEndToEnd(t *testing.T) {
	router := &stubRouter{}
	n, log, _ := newTestNavigator(t, router)

	submit(t, n, startPoint)
	require.Eventually(t, func() bool {
		return log.find(navigation.EventLegPathUpdated, func(ev navigation.Event) bool {
			return ev.Waypoint != nil && ev.Waypoint.ID == "a"
		})
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, log.find(navigation.EventPhaseChanged, func(ev navigation.Event) bool { return ev.Phase == navigation.InRoute }))

	snap := n.Snapshot()
	assert.Equal(t, navigation.InRoute, snap.Session.Phase)
	require.NotNil(t, snap.Target)
	assert.Equal(t, "a", snap.Target.ID)
	require.NotNil(t, snap.Guidance)
	assert.True(t, snap.Guidance.BearingOnly, "legs without turns fall back to bearing guidance")

	leg, ok := n.ActiveLeg()
	require.True(t, ok)
	assert.Equal(t, pointA, leg.Path[len(leg.Path)-1])

	submit(t, n, pointA)
	require.Eventually(t, func() bool {
		return log.find(navigation.EventArrived, func(ev navigation.Event) bool { return ev.TargetIndex == 0 })
	}, 2*time.Second, 5*time.Millisecond)

	submit(t, n, pointB)
	require.Eventually(t, func() bool {
		return log.find(navigation.EventPhaseChanged, func(ev navigation.Event) bool { return ev.Phase == navigation.Completed })
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, log.find(navigation.EventArrived, func(ev navigation.Event) bool { return ev.TargetIndex == 1 && !ev.Implicit }))
	assert.Equal(t, 2, log.count(navigation.EventArrived))
	assert.Eventually(t, func() bool { return n.Snapshot().Progress.Fraction == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, n.Recorder().Len())
}

func TestNavigator_OffRouteReroutes(t *testing.T) {
	router := &stubRouter{}
	n, log, _ := newTestNavigator(t, router)

	submit(t, n, startPoint)
	require.Eventually(t, func() bool { return log.count(navigation.EventLegPathUpdated) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), router.calls.Load())

	detour := geo.Point{Latitude: 52.0005, Longitude: 4.003}
	submit(t, n, detour)
	require.Eventually(t, func() bool { return log.count(navigation.EventOffRoute) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return log.count(navigation.EventLegPathUpdated) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), router.calls.Load())

	assert.Eventually(t, func() bool { return !n.Snapshot().OffRoute }, time.Second, 5*time.Millisecond)

	// A second excursion inside the reroute interval does not refetch
	far := geo.Point{Latitude: 52.0000, Longitude: 4.006}
	submit(t, n, far)
	require.Eventually(t, func() bool { return log.count(navigation.EventOffRoute) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), router.calls.Load())
}

func TestNavigator_FailedFetchDegradesToBearing(t *testing.T) {
	router := &stubRouter{err: errors.New("boom")}
	n, log, _ := newTestNavigator(t, router)

	submit(t, n, startPoint)
	require.Eventually(t, func() bool { return router.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, log.count(navigation.EventLegPathUpdated))
	snap := n.Snapshot()
	require.NotNil(t, snap.Guidance)
	assert.True(t, snap.Guidance.BearingOnly)
	assert.Contains(t, snap.GuidanceText, "Head northeast")

	// Arrival still works on the strict radius
	submit(t, n, pointA)
	require.Eventually(t, func() bool { return log.count(navigation.EventArrived) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestNavigator_SimulationReplaysLegs(t *testing.T) {
	router := &stubRouter{}
	n, log, ctx := newTestNavigator(t, router)

	require.NoError(t, n.SetSimulation(ctx, true, 5))
	require.Eventually(t, func() bool { return n.player.HasPath() && n.player.State().IsActive }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, n.Snapshot().Simulation.SpeedMultiplier)

	// Run the first leg out; its final point is target A
	_, ok := n.player.Advance(time.Hour)
	require.True(t, ok)
	require.Eventually(t, func() bool { return log.count(navigation.EventArrived) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return log.count(navigation.EventLegExhausted) == 1 }, 2*time.Second, 5*time.Millisecond)

	// The next leg is loaded and replayed automatically
	require.Eventually(t, func() bool { return n.player.HasPath() && n.player.State().IsActive }, 2*time.Second, 5*time.Millisecond)
	n.player.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return log.find(navigation.EventPhaseChanged, func(ev navigation.Event) bool { return ev.Phase == navigation.Completed })
	}, 2*time.Second, 5*time.Millisecond)

	// Simulated positions never count as off route
	assert.Equal(t, 0, log.count(navigation.EventOffRoute))

	assert.ErrorContains(t, n.SetSimulation(ctx, true, 3), "unsupported speed")
	require.NoError(t, n.SetSimulation(ctx, false, 0))
	assert.False(t, n.Snapshot().Simulating)
}

func TestNavigator_FollowStateEvents(t *testing.T) {
	n, log, ctx := newTestNavigator(t, &stubRouter{})

	require.NoError(t, n.Gesture(ctx, "drag"))
	require.NoError(t, n.Gesture(ctx, "zoom"))
	assert.Eventually(t, func() bool { return log.count(navigation.EventFollowStateChanged) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, n.Snapshot().Following)

	require.NoError(t, n.Recenter(ctx))
	assert.Eventually(t, func() bool { return log.count(navigation.EventFollowStateChanged) == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, n.Snapshot().Following)

	require.NoError(t, n.ApplyView(ctx, "fit"))
	assert.Eventually(t, func() bool {
		return log.find(navigation.EventFollowStateChanged, func(ev navigation.Event) bool { return !ev.Following }) &&
			log.count(navigation.EventFollowStateChanged) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, n.ApplyView(ctx, "tilt"))
}

func TestNavigator_ReplaceRoute(t *testing.T) {
	router := &stubRouter{}
	n, log, ctx := newTestNavigator(t, router)

	submit(t, n, startPoint)
	require.Eventually(t, func() bool { return log.count(navigation.EventLegPathUpdated) == 1 }, 2*time.Second, 5*time.Millisecond)
	before := n.Snapshot().Session.ID

	require.NoError(t, n.ReplaceRoute(ctx, []navigation.Waypoint{
		navigation.NewStartPoint("s2", "Second start", pointB),
		navigation.NewManualMarker("m", "Marker", pointA),
	}))

	snap := n.Snapshot()
	assert.NotEqual(t, before, snap.Session.ID)
	assert.Equal(t, navigation.PreRoute, snap.Session.Phase)
	require.Len(t, snap.Waypoints, 2)
	assert.Equal(t, navigation.KindManual, snap.Waypoints[1].Kind)

	// The last known position immediately requests the leg to the new start
	require.Eventually(t, func() bool {
		return log.find(navigation.EventLegPathUpdated, func(ev navigation.Event) bool {
			return ev.Waypoint != nil && ev.Waypoint.ID == "s2"
		})
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNavigator_CommandsRequireRunningLoop(t *testing.T) {
	n := NewNavigator(testWaypoints(), NewLegFetcher(&stubRouter{}, nil, nil), NewEventBus(0, nil), NavigatorConfig{}, nil)
	assert.ErrorIs(t, n.Recenter(context.Background()), ErrNotRunning)

	// Positions queue until the loop starts, then overflow
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = n.SubmitPosition(geo.Position{Point: startPoint})
	}
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Error(t, n.SubmitPosition(geo.Position{Point: geo.Point{Latitude: 123, Longitude: 0}}))
}

func TestNavigator_SimulationResumesFromCursor(t *testing.T) {
	n, _, ctx := newTestNavigator(t, &stubRouter{})

	require.NoError(t, n.SetSimulation(ctx, true, 1))
	require.Eventually(t, func() bool { return n.player.HasPath() && n.player.State().IsActive }, 2*time.Second, 5*time.Millisecond)

	walked, ok := n.player.Advance(40 * time.Second)
	require.True(t, ok)
	require.Greater(t, geo.Distance(startPoint, walked.Point), 50.0)

	require.NoError(t, n.SetSimulation(ctx, false, 0))
	_, ok = n.player.Advance(time.Second)
	assert.False(t, ok, "a paused player emits nothing")

	require.NoError(t, n.SetSimulation(ctx, true, 0))
	next, ok := n.player.Advance(time.Second)
	require.True(t, ok)
	assert.Greater(t, geo.Distance(startPoint, next.Point), geo.Distance(startPoint, walked.Point),
		"resuming continues ahead instead of rewinding to the leg origin")
}

func TestNavigator_DropsLegsFromReplacedRoute(t *testing.T) {
	bus := NewEventBus(16, nil)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	n := NewNavigator(testWaypoints(), NewLegFetcher(&stubRouter{}, nil, nil), bus, NavigatorConfig{}, nil)
	n.simulating = true
	key, ok := n.controller.CurrentKey()
	require.True(t, ok)

	// Same target and phase as the new route, but requested before the reset
	old := n.fetcher.Generation()
	n.fetcher.Reset()
	leg := &routing.Leg{TargetID: "start", Path: []geo.Point{pointB, startPoint}}

	n.handleLegResult(LegResult{Key: key, Leg: leg, Generation: old})
	assert.Len(t, events, 0)
	assert.False(t, n.player.HasPath())

	n.handleLegResult(LegResult{Key: key, Leg: leg, Generation: n.fetcher.Generation()})
	require.Len(t, events, 1)
	assert.Equal(t, navigation.EventLegPathUpdated, (<-events).Kind)
	assert.True(t, n.player.HasPath())
}
