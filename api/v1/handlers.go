package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/camera"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/simulation"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/trace"
	"github.com/Schepie/CityExplorer-sub000/internal/services"
)

// commandTimeout bounds how long a handler waits on the navigator loop
const commandTimeout = 5 * time.Second

// Navigator is the navigation session the API drives
type Navigator interface {
	SubmitPosition(pos geo.Position) error
	Snapshot() services.Snapshot
	ActiveLeg() (*routing.Leg, bool)
	ReplaceRoute(ctx context.Context, waypoints []navigation.Waypoint) error
	ApplyView(ctx context.Context, action camera.ViewAction) error
	Gesture(ctx context.Context, g camera.Gesture) error
	Recenter(ctx context.Context) error
	SetSimulation(ctx context.Context, enabled bool, speed int) error
	Recorder() *trace.Recorder
}

// EventSource supplies navigation events for streaming
type EventSource interface {
	Subscribe() (<-chan navigation.Event, func())
}

// Handler serves the navigation HTTP API
type Handler struct {
	nav    Navigator
	events EventSource
	logger *zap.SugaredLogger
}

// NewHandler creates the API handler
func NewHandler(nav Navigator, events EventSource, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{nav: nav, events: events, logger: logger}
}

// PositionRequest is a live position report
type PositionRequest struct {
	Latitude  *float64   `json:"lat" binding:"required,gte=-90,lte=90"`
	Longitude *float64   `json:"lng" binding:"required,gte=-180,lte=180"`
	Heading   *float64   `json:"heading,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RouteRequest replaces the waypoint list
type RouteRequest struct {
	Waypoints []navigation.WaypointSpec `json:"waypoints" binding:"required,min=1,dive"`
}

// GestureRequest reports a manual map interaction
type GestureRequest struct {
	Kind camera.Gesture `json:"kind" binding:"required,oneof=drag zoom"`
}

// SimulationRequest toggles replay
type SimulationRequest struct {
	Enabled bool `json:"enabled"`
	Speed   int  `json:"speed"`
}

// Register mounts the API routes on r
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api/v1")
	api.POST("/positions", h.PostPosition)
	api.GET("/session", h.GetSession)
	api.POST("/route", h.PostRoute)
	api.POST("/view/:action", h.PostView)
	api.POST("/camera/gesture", h.PostGesture)
	api.POST("/camera/recenter", h.PostRecenter)
	api.POST("/simulation", h.PostSimulation)
	api.GET("/leg", h.GetLeg)
	api.GET("/trace", h.GetTrace)
	api.GET("/trace.kml", h.GetTraceKML)
	api.GET("/events", h.GetEvents)
}

// PostPosition ingests a live position
func (h *Handler) PostPosition(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ts := time.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	pos := geo.NewPosition(*req.Latitude, *req.Longitude, ts)
	if req.Heading != nil {
		pos = pos.WithHeading(*req.Heading)
	}

	if err := h.nav.SubmitPosition(pos); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetSession returns the navigator snapshot
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.nav.Snapshot())
}

// PostRoute replaces the waypoints and starts a new session
func (h *Handler) PostRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Waypoints[0].Kind == "" {
		req.Waypoints[0].Kind = navigation.KindStart
	}

	waypoints, err := navigation.BuildWaypoints(req.Waypoints)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	if err := h.nav.ReplaceRoute(ctx, waypoints); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.nav.Snapshot())
}

// PostView applies an explicit view action: center or fit
func (h *Handler) PostView(c *gin.Context) {
	action := camera.ViewAction(c.Param("action"))
	if action != camera.CenterOnAgent && action != camera.FitRoute {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown view action: " + string(action)})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	if err := h.nav.ApplyView(ctx, action); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": h.nav.Snapshot().Following})
}

// PostGesture pauses follow mode
func (h *Handler) PostGesture(c *gin.Context) {
	var req GestureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	if err := h.nav.Gesture(ctx, req.Kind); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": h.nav.Snapshot().Following})
}

// PostRecenter resumes follow mode
func (h *Handler) PostRecenter(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	if err := h.nav.Recenter(ctx); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": h.nav.Snapshot().Following})
}

// PostSimulation toggles replay and sets its speed
func (h *Handler) PostSimulation(c *gin.Context) {
	var req SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()
	if err := h.nav.SetSimulation(ctx, req.Enabled, req.Speed); err != nil {
		h.fail(c, err)
		return
	}

	snap := h.nav.Snapshot()
	c.JSON(http.StatusOK, gin.H{"simulating": snap.Simulating, "simulation": snap.Simulation})
}

// GetLeg returns the active leg as a GeoJSON Feature
func (h *Handler) GetLeg(c *gin.Context) {
	leg, ok := h.nav.ActiveLeg()
	if !ok || leg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active leg"})
		return
	}

	line := make(orb.LineString, len(leg.Path))
	for i, p := range leg.Path {
		line[i] = p.Orb()
	}

	feature := geojson.NewFeature(line)
	feature.Properties["target_id"] = leg.TargetID
	feature.Properties["distance_meters"] = leg.DistanceMeters
	feature.Properties["duration_seconds"] = leg.DurationSeconds
	feature.Properties["turns"] = leg.Turns
	feature.Properties["fetched_at"] = leg.FetchedAt
	c.JSON(http.StatusOK, feature)
}

// GetTrace returns the walked trace as a GeoJSON FeatureCollection
func (h *Handler) GetTrace(c *gin.Context) {
	fc := geojson.NewFeatureCollection()
	if line := h.nav.Recorder().LineString(); len(line) >= 2 {
		f := geojson.NewFeature(line)
		f.Properties["name"] = "walked"
		fc.Append(f)
	}
	for _, w := range h.nav.Snapshot().Waypoints {
		f := geojson.NewFeature(orb.Point{w.Longitude, w.Latitude})
		f.ID = w.ID
		f.Properties["name"] = w.Name
		f.Properties["kind"] = w.Kind
		fc.Append(f)
	}
	c.JSON(http.StatusOK, fc)
}

// GetTraceKML exports waypoints, legs and the walked trace as KML
func (h *Handler) GetTraceKML(c *gin.Context) {
	snap := h.nav.Snapshot()
	waypoints, err := navigation.BuildWaypoints(snap.Waypoints)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.google-earth.kml+xml")
	c.Header("Content-Disposition", `attachment; filename="trace.kml"`)
	c.Status(http.StatusOK)
	if err := h.nav.Recorder().WriteKML(c.Writer, "Session "+snap.Session.ID.String(), waypoints); err != nil {
		h.logger.Errorw("Failed to write KML", "error", err)
	}
}

// GetEvents streams navigation events as server-sent events until the client goes away
func (h *Handler) GetEvents(c *gin.Context) {
	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}

// fail maps domain errors to HTTP status codes
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, navigation.ErrInvalidWaypoint),
		errors.Is(err, simulation.ErrUnsupportedSpeed):
		status = http.StatusBadRequest
	case errors.Is(err, camera.ErrNothingToFit):
		status = http.StatusConflict
	case errors.Is(err, services.ErrQueueFull),
		errors.Is(err, services.ErrNotRunning):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		h.logger.Errorw("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
