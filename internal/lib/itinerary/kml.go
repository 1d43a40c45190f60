package itinerary

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
)

// kmlDocument is the subset of KML read for itineraries
type kmlDocument struct {
	Document kmlContainer `xml:"Document"`
}

type kmlContainer struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlContainer `xml:"Folder"`
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	StyleURL    string `xml:"styleUrl"`
	Point       *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
	LineString *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"LineString"`
}

// exportedWaypoint matches the description written by trace exports: "#1 museum (poi)"
var exportedWaypoint = regexp.MustCompile(`^#\d+ (\S+) \((start|poi|manual)\)$`)

// ParseKML reads Point placemarks as waypoints in document order and the
// walked trace, or else the first line string, as the replay track
func ParseKML(data []byte) (*Itinerary, error) {
	var doc kmlDocument
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	it := Itinerary{Name: doc.Document.Name}

	var (
		placemarks []kmlPlacemark
		topLevel   = len(doc.Document.Placemarks)
	)
	placemarks = append(placemarks, doc.Document.Placemarks...)
	collect(doc.Document.Folders, &placemarks)

	for i, pm := range placemarks {
		if pm.Point != nil {
			coords, err := parseCoordinates(pm.Point.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
			}
			if len(coords) == 0 {
				continue
			}
			it.Waypoints = append(it.Waypoints, placemarkSpec(pm, coords[0], len(it.Waypoints)))
			continue
		}

		// Document-level lines precede folder lines and win over them
		if pm.LineString != nil && (it.Track == nil || i < topLevel) {
			coords, err := parseCoordinates(pm.LineString.Coordinates)
			if err != nil {
				return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
			}
			it.Track = coords
		}
	}

	if err := it.normalize(); err != nil {
		return nil, err
	}
	return &it, nil
}

func collect(folders []kmlContainer, out *[]kmlPlacemark) {
	for _, f := range folders {
		*out = append(*out, f.Placemarks...)
		collect(f.Folders, out)
	}
}

func placemarkSpec(pm kmlPlacemark, p geo.Point, index int) navigation.WaypointSpec {
	spec := navigation.WaypointSpec{
		Name:      strings.TrimSpace(pm.Name),
		Category:  strings.TrimPrefix(strings.TrimSpace(pm.StyleURL), "#"),
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}

	if m := exportedWaypoint.FindStringSubmatch(extractTextFromHTML(pm.Description)); m != nil {
		spec.ID = m[1]
		spec.Kind = navigation.Kind(m[2])
		return spec
	}

	spec.ID = slug(spec.Name)
	if spec.ID == "" {
		spec.ID = fmt.Sprintf("wpt-%d", index)
	}
	return spec
}

// parseCoordinates reads whitespace separated "lon,lat[,alt]" tuples
func parseCoordinates(s string) ([]geo.Point, error) {
	var points []geo.Point
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid coordinate tuple %q", tuple)
		}
		lng, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q", parts[1])
		}
		points = append(points, geo.Point{Latitude: lat, Longitude: lng})
	}
	return points, nil
}

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// extractTextFromHTML strips tags and entities from a placemark description
func extractTextFromHTML(htmlContent string) string {
	text := htmlTag.ReplaceAllString(htmlContent, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
