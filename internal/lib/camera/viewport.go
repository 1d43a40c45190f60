package camera

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
)

// TileSize is the Web Mercator tile edge in pixels
const TileSize = 256.0

// maxMercatorLatitude bounds the projection to a square world
const maxMercatorLatitude = 85.05112878

// ScreenPoint is a position in viewport pixels, origin top-left
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the viewport size in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the map surface the camera drives
type Viewport interface {
	Size() Size
	Project(p geo.Point) ScreenPoint
	Unproject(s ScreenPoint) geo.Point

	// PanBy moves the view so the content at (dx, dy) from the centre
	// becomes the new centre
	PanBy(dx, dy float64)

	Center() geo.Point
	SetCenter(p geo.Point)
	Zoom() float64
	SetZoom(z float64)

	// FitBounds centres and zooms the view so b fits inside the viewport
	// minus padding pixels on each side
	FitBounds(b orb.Bound, padding float64)
}

// MercatorViewport is a headless Web Mercator viewport
type MercatorViewport struct {
	size   Size
	center geo.Point
	zoom   float64
}

// NewMercatorViewport creates a viewport of the given pixel size
func NewMercatorViewport(width, height float64, center geo.Point, zoom float64) *MercatorViewport {
	return &MercatorViewport{size: Size{Width: width, Height: height}, center: center, zoom: zoom}
}

func (v *MercatorViewport) Size() Size { return v.size }
func (v *MercatorViewport) Center() geo.Point { return v.center }
func (v *MercatorViewport) SetCenter(p geo.Point) { v.center = p }
func (v *MercatorViewport) Zoom() float64 { return v.zoom }
func (v *MercatorViewport) SetZoom(z float64) { v.zoom = z }

// Resize changes the pixel size keeping centre and zoom
func (v *MercatorViewport) Resize(width, height float64) {
	v.size = Size{Width: width, Height: height}
}

// Project converts p to viewport pixels
func (v *MercatorViewport) Project(p geo.Point) ScreenPoint {
	wx, wy := toWorld(p, v.zoom)
	cx, cy := toWorld(v.center, v.zoom)
	return ScreenPoint{
		X: wx - cx + v.size.Width/2,
		Y: wy - cy + v.size.Height/2,
	}
}

// Unproject converts viewport pixels to a coordinate
func (v *MercatorViewport) Unproject(s ScreenPoint) geo.Point {
	cx, cy := toWorld(v.center, v.zoom)
	return fromWorld(cx+s.X-v.size.Width/2, cy+s.Y-v.size.Height/2, v.zoom)
}

// PanBy shifts the centre by (dx, dy) pixels
func (v *MercatorViewport) PanBy(dx, dy float64) {
	v.center = v.Unproject(ScreenPoint{X: v.size.Width/2 + dx, Y: v.size.Height/2 + dy})
}

// FitBounds frames b inside the viewport minus padding
func (v *MercatorViewport) FitBounds(b orb.Bound, padding float64) {
	sw := geo.Point{Latitude: b.Min.Lat(), Longitude: b.Min.Lon()}
	ne := geo.Point{Latitude: b.Max.Lat(), Longitude: b.Max.Lon()}

	x0, y0 := toWorld(sw, 0)
	x1, y1 := toWorld(ne, 0)
	spanX := math.Abs(x1 - x0)
	spanY := math.Abs(y1 - y0)

	availW := math.Max(v.size.Width-2*padding, 1)
	availH := math.Max(v.size.Height-2*padding, 1)

	switch {
	case spanX == 0 && spanY == 0:
		// single point: keep zoom
	case spanX == 0:
		v.zoom = math.Log2(availH / spanY)
	case spanY == 0:
		v.zoom = math.Log2(availW / spanX)
	default:
		v.zoom = math.Log2(math.Min(availW/spanX, availH/spanY))
	}

	v.center = fromWorld((x0+x1)/2, (y0+y1)/2, 0)
}

func worldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

func toWorld(p geo.Point, zoom float64) (float64, float64) {
	lat := math.Max(-maxMercatorLatitude, math.Min(maxMercatorLatitude, p.Latitude))
	size := worldSize(zoom)
	x := (p.Longitude + 180) / 360 * size
	sin := math.Sin(lat * math.Pi / 180)
	y := (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * size
	return x, y
}

func fromWorld(x, y, zoom float64) geo.Point {
	size := worldSize(zoom)
	lng := x/size*360 - 180
	n := math.Pi - 2*math.Pi*y/size
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return geo.Point{Latitude: lat, Longitude: lng}
}
