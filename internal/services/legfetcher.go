package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Schepie/CityExplorer-sub000/internal/cache"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

var _ navigation.LegLookup = (*LegFetcher)(nil)

// DefaultFetchTimeout bounds a single routing request
const DefaultFetchTimeout = 15 * time.Second

// LegResult is the outcome of one leg request. Leg is nil when Err is set.
type LegResult struct {
	Key        navigation.LegKey
	Leg        *routing.Leg
	Err        error
	Generation uint64 // fetcher generation the request was issued in
}

// LegFetcher obtains leg geometry asynchronously. At most one request per
// (target, phase) key is outstanding, and results for any key other than
// the current one are discarded.
type LegFetcher struct {
	router  routing.Router
	store   *cache.LegStore
	logger  *zap.SugaredLogger
	timeout time.Duration
	group   singleflight.Group
	results chan LegResult

	mu         sync.Mutex
	generation uint64
	inFlight   map[navigation.LegKey]uint64 // key -> generation of the outstanding request
	current    navigation.LegKey
	hasCurrent bool
	legs       map[string]*routing.Leg
}

// NewLegFetcher creates a fetcher. store may be nil to disable caching.
func NewLegFetcher(router routing.Router, store *cache.LegStore, logger *zap.SugaredLogger) *LegFetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LegFetcher{
		router:   router,
		store:    store,
		logger:   logger,
		timeout:  DefaultFetchTimeout,
		results:  make(chan LegResult, 16),
		inFlight: make(map[navigation.LegKey]uint64),
		legs:     make(map[string]*routing.Leg),
	}
}

// SetTimeout overrides the per-request timeout
func (f *LegFetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Results delivers accepted leg results and failures for the current key
func (f *LegFetcher) Results() <-chan LegResult {
	return f.results
}

// SetCurrent marks the key that results must match to be applied
func (f *LegFetcher) SetCurrent(key navigation.LegKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current, f.hasCurrent = key, true
}

// Current returns the key results must match
func (f *LegFetcher) Current() (navigation.LegKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.hasCurrent
}

// Generation counts resets; results carry the generation they were requested in
func (f *LegFetcher) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

// Leg returns the last accepted leg leading to targetID
func (f *LegFetcher) Leg(targetID string) (*routing.Leg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	leg, ok := f.legs[targetID]
	return leg, ok
}

// Reset forgets accepted legs and the current key. Requests still in
// flight complete but their results are discarded.
func (f *LegFetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.inFlight = make(map[navigation.LegKey]uint64)
	f.legs = make(map[string]*routing.Leg)
	f.current, f.hasCurrent = navigation.LegKey{}, false
}

// Request starts fetching the leg for key from origin to dest. It returns
// false when a request for the same key is already outstanding.
func (f *LegFetcher) Request(ctx context.Context, key navigation.LegKey, origin geo.Point, dest navigation.Waypoint, profile routing.Profile) bool {
	f.mu.Lock()
	if gen, ok := f.inFlight[key]; ok && gen == f.generation {
		f.mu.Unlock()
		return false
	}
	gen := f.generation
	f.inFlight[key] = gen
	f.mu.Unlock()

	go f.fetch(ctx, gen, key, origin, dest, profile)
	return true
}

func (f *LegFetcher) fetch(ctx context.Context, gen uint64, key navigation.LegKey, origin geo.Point, dest navigation.Waypoint, profile routing.Profile) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "Leg fetch: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(3, 5))
			f.finish(ctx, gen, LegResult{Key: key, Err: fmt.Errorf("leg fetch panicked: %v", r)})
		}
	}()

	leg, err := f.load(ctx, origin, dest.Point(), profile)
	if err != nil {
		f.logger.Warnw("Leg fetch failed, falling back to bearing-only guidance",
			"target", key.TargetID, "phase", key.Phase, "error", err)
		f.finish(ctx, gen, LegResult{Key: key, Err: err})
		return
	}

	leg = leg.Clone()
	leg.TargetID = dest.ID()
	leg.Path[len(leg.Path)-1] = dest.Point()

	f.finish(ctx, gen, LegResult{Key: key, Leg: leg})
}

// load consults the cache, then the router, collapsing identical concurrent requests
func (f *LegFetcher) load(ctx context.Context, origin, dest geo.Point, profile routing.Profile) (*routing.Leg, error) {
	if f.store != nil {
		leg, found, err := f.store.Get(profile, origin, dest)
		if err != nil {
			f.logger.Warnw("Leg cache error", "error", err)
		}
		if found && len(leg.Path) >= 2 {
			return leg, nil
		}
	}

	v, err, _ := f.group.Do(cache.LegKey(profile, origin, dest), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		leg, err := f.router.Route(fetchCtx, origin, dest, profile)
		if err != nil {
			return nil, err
		}
		if leg == nil || len(leg.Path) < 2 {
			return nil, fmt.Errorf("%w: empty geometry", routing.ErrNoRoute)
		}

		if f.store != nil {
			if err := f.store.Set(profile, origin, dest, leg); err != nil {
				f.logger.Warnw("Failed to cache leg", "error", err)
			}
		}
		return leg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*routing.Leg), nil
}

// finish clears the in-flight mark and delivers the result if it is still relevant
func (f *LegFetcher) finish(ctx context.Context, gen uint64, result LegResult) {
	f.mu.Lock()
	if f.inFlight[result.Key] == gen {
		delete(f.inFlight, result.Key)
	}
	if gen != f.generation || !f.hasCurrent || f.current != result.Key {
		f.mu.Unlock()
		f.logger.Debugw("Discarding stale leg result", "target", result.Key.TargetID, "phase", result.Key.Phase)
		return
	}
	if result.Leg != nil {
		f.legs[result.Leg.TargetID] = result.Leg
	}
	result.Generation = gen
	f.mu.Unlock()

	select {
	case f.results <- result:
	case <-ctx.Done():
	}
}
