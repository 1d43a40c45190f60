package camera

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

// ErrNothingToFit is returned by FitRoute when no route geometry is known
var ErrNothingToFit = errors.New("no route geometry to fit")

// ViewAction is an explicit framing request from the user
type ViewAction string

const (
	CenterOnAgent ViewAction = "center"
	FitRoute      ViewAction = "fit"
)

// Gesture is a manual map interaction
type Gesture string

const (
	GestureDrag Gesture = "drag"
	GestureZoom Gesture = "zoom"
)

// DefaultAnchor keeps the agent centred horizontally and in the lower part
// of the frame, leaving room for an instruction overlay
var DefaultAnchor = [2]float64{0.5, 0.7}

// Options tunes the camera
type Options struct {
	Anchor          [2]float64
	Throttle        time.Duration // minimum interval between position-driven pans
	DeadBandPixels  float64       // offsets at or below this are not panned
	CenterZoom      float64       // zoom used by CenterOnAgent
	FitPadding      float64       // pixels kept free around a fitted route
	FitMaxZoom      float64       // zoom ceiling for FitRoute
	AutoZoom        bool          // adjust zoom to the look-ahead distance
	LookAheadMeters float64
}

// DefaultOptions returns the standard camera behaviour
func DefaultOptions() Options {
	return Options{
		Anchor:          DefaultAnchor,
		Throttle:        200 * time.Millisecond,
		DeadBandPixels:  1,
		CenterZoom:      17.5,
		FitPadding:      20,
		FitMaxZoom:      18,
		LookAheadMeters: 300,
	}
}

// Controller frames the tracked position in a Viewport and arbitrates
// between auto-follow and manual interaction
type Controller struct {
	mu sync.Mutex

	viewport Viewport
	opts     Options
	now      func() time.Time

	following bool
	lastPan   time.Time
	lastPos   *geo.Point
}

// NewController creates a controller in follow mode
func NewController(viewport Viewport, opts Options) *Controller {
	return &Controller{
		viewport:  viewport,
		opts:      opts,
		now:       time.Now,
		following: true,
	}
}

// SetClock overrides the throttle clock
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Following reports whether auto-follow is on
func (c *Controller) Following() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.following
}

// Viewport returns the driven viewport
func (c *Controller) Viewport() Viewport {
	return c.viewport
}

// PanToAnchor pans so p lands on the normalised anchor. It reports whether
// a pan was issued.
func (c *Controller) PanToAnchor(p geo.Point, anchor [2]float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panToAnchor(p, anchor)
}

func (c *Controller) panToAnchor(p geo.Point, anchor [2]float64) bool {
	size := c.viewport.Size()
	screen := c.viewport.Project(p)

	dx := screen.X - size.Width*anchor[0]
	dy := screen.Y - size.Height*anchor[1]
	if math.Abs(dx) <= c.opts.DeadBandPixels && math.Abs(dy) <= c.opts.DeadBandPixels {
		return false
	}
	c.viewport.PanBy(dx, dy)
	return true
}

// OnPosition re-frames on a new position while following, at most once per
// throttle interval. path is the active leg, used for auto-zoom; it may be nil.
func (c *Controller) OnPosition(pos geo.Position, path []geo.Point) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := pos.Point
	c.lastPos = &p

	if !c.following {
		return false
	}
	now := c.now()
	if !c.lastPan.IsZero() && now.Sub(c.lastPan) < c.opts.Throttle {
		return false
	}
	c.lastPan = now

	if c.opts.AutoZoom {
		if ahead, ok := geo.PointAhead(path, p, c.opts.LookAheadMeters); ok {
			target := AutoZoomFor(geo.Distance(p, ahead))
			if math.Abs(c.viewport.Zoom()-target) > 0.5 {
				c.viewport.SetZoom(target)
			}
		}
	}

	return c.panToAnchor(p, c.opts.Anchor)
}

// OnUserGesture pauses follow mode. It reports whether the follow state changed.
func (c *Controller) OnUserGesture(g Gesture) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setFollowing(false)
}

// Recenter resumes follow mode and frames the last known position
// immediately. It reports whether the follow state changed.
func (c *Controller) Recenter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.setFollowing(true)
	if c.lastPos != nil {
		c.panToAnchor(*c.lastPos, c.opts.Anchor)
		c.lastPan = c.now()
	}
	return changed
}

// Apply performs an explicit view action. CenterOnAgent re-enables follow;
// FitRoute disables it. It reports whether the follow state changed.
func (c *Controller) Apply(action ViewAction, route []geo.Point) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch action {
	case CenterOnAgent:
		changed := c.setFollowing(true)
		if c.lastPos != nil {
			c.viewport.SetZoom(c.opts.CenterZoom)
			c.panToAnchor(*c.lastPos, c.opts.Anchor)
			c.lastPan = c.now()
		}
		return changed, nil

	case FitRoute:
		bound, ok := geo.Bounds(route)
		if !ok {
			return false, ErrNothingToFit
		}
		changed := c.setFollowing(false)
		c.viewport.FitBounds(bound, c.opts.FitPadding)
		if c.opts.FitMaxZoom > 0 && c.viewport.Zoom() > c.opts.FitMaxZoom {
			c.viewport.SetZoom(c.opts.FitMaxZoom)
		}
		return changed, nil
	}
	return false, errors.New("unknown view action: " + string(action))
}

func (c *Controller) setFollowing(following bool) bool {
	if c.following == following {
		return false
	}
	c.following = following
	return true
}

// AutoZoomFor picks a zoom level for the distance of route visible ahead
func AutoZoomFor(lookAheadMeters float64) float64 {
	switch {
	case lookAheadMeters > 500:
		return 15
	case lookAheadMeters < 150:
		return 18
	}
	return 16
}
