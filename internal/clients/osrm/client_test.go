package osrm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-polyline"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// MockHTTPDoer is a mock implementation of HTTPDoer
type MockHTTPDoer struct {
	mock.Mock
}

func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

// Helper function to load test fixture data
func loadTestFixture(t *testing.T, filename string) string {
	data, err := os.ReadFile("testdata/" + filename)
	require.NoError(t, err, "Failed to load test fixture %s", filename)
	return string(data)
}

// Helper function to create mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var (
	groteMarkt   = geo.Point{Latitude: 50.879234, Longitude: 4.700421}
	ladeuzeplein = geo.Point{Latitude: 50.882050, Longitude: 4.704012}
)

func TestRoute_Success(t *testing.T) {
	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.Method == http.MethodGet &&
			req.URL.Path == "/routed-foot/route/v1/foot/4.700421,50.879234;4.704012,50.882050" &&
			req.URL.Query().Get("geometries") == "geojson" &&
			req.URL.Query().Get("steps") == "true" &&
			req.URL.Query().Get("overview") == "full"
	})).Return(createMockResponse(200, loadTestFixture(t, "leuven_foot.json")), nil)

	client := NewClientWithHTTPDoer(DefaultBaseURL, mockHTTP)

	leg, err := client.Route(context.Background(), groteMarkt, ladeuzeplein, routing.Walking)
	require.NoError(t, err)
	require.NotNil(t, leg)

	// Coordinates are flipped from [lng, lat] on ingestion
	require.Len(t, leg.Path, 6)
	assert.Equal(t, groteMarkt, leg.Path[0])
	assert.Equal(t, ladeuzeplein, leg.Path[5])

	assert.Equal(t, 412.6, leg.DistanceMeters)
	assert.Equal(t, 297.1, leg.DurationSeconds)
	assert.False(t, leg.FetchedAt.IsZero())

	require.Len(t, leg.Turns, 4)
	assert.Equal(t, "depart", leg.Turns[0].Type)
	assert.Equal(t, "Grote Markt", leg.Turns[0].StreetName)
	assert.Equal(t, routing.Turn{
		Type:           "turn",
		Modifier:       "left",
		StreetName:     "Bondgenotenlaan",
		Location:       geo.Point{Latitude: 50.880120, Longitude: 4.701744},
		DistanceMeters: 176.8,
	}, leg.Turns[1])
	assert.Equal(t, 2, leg.Turns[2].Exit)
	assert.Equal(t, "arrive", leg.Turns[3].Type)

	mockHTTP.AssertExpectations(t)
}

func TestRoute_CyclingProfile(t *testing.T) {
	client := NewClientWithHTTPDoer("https://osrm.example.org/", nil)

	url := client.RouteURL(groteMarkt, ladeuzeplein, routing.Cycling)
	assert.Equal(t,
		"https://osrm.example.org/routed-bike/route/v1/bike/4.700421,50.879234;4.704012,50.882050?overview=full&geometries=geojson&steps=true",
		url)
}

func TestRoute_Polyline6Geometry(t *testing.T) {
	coords := [][]float64{
		{groteMarkt.Latitude, groteMarkt.Longitude},
		{50.880120, 4.701744},
		{ladeuzeplein.Latitude, ladeuzeplein.Longitude},
	}
	encoded := string(polyline.Codec{Dim: 2, Scale: 1e6}.EncodeCoords(nil, coords))
	body := fmt.Sprintf(`{"code":"Ok","routes":[{"distance":400,"duration":290,"geometry":%q,"legs":[]}]}`, encoded)

	mockHTTP := &MockHTTPDoer{}
	mockHTTP.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.URL.Query().Get("geometries") == "polyline6"
	})).Return(createMockResponse(200, body), nil)

	client := NewClientWithHTTPDoer(DefaultBaseURL, mockHTTP)
	client.SetGeometries(Polyline6)

	leg, err := client.Route(context.Background(), groteMarkt, ladeuzeplein, routing.Walking)
	require.NoError(t, err)
	require.Len(t, leg.Path, 3)
	assert.InDelta(t, 50.880120, leg.Path[1].Latitude, 1e-6)
	assert.InDelta(t, 4.701744, leg.Path[1].Longitude, 1e-6)
	assert.Empty(t, leg.Turns)

	mockHTTP.AssertExpectations(t)
}

func TestRoute_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		doErr     error
		wantNoRte bool
	}{
		{name: "no route", status: 200, body: `{"code":"NoRoute","message":"Impossible route between points"}`, wantNoRte: true},
		{name: "empty routes", status: 200, body: `{"code":"Ok","routes":[]}`, wantNoRte: true},
		{name: "invalid query", status: 400, body: `{"code":"InvalidQuery","message":"Query string malformed"}`},
		{name: "server error", status: 502, body: `<html>Bad Gateway</html>`},
		{name: "rate limited", status: 429, body: ``},
		{name: "malformed json", status: 200, body: `{"code":`},
		{name: "single point geometry", status: 200, body: `{"code":"Ok","routes":[{"geometry":{"type":"LineString","coordinates":[[4.7,50.8]]}}]}`},
		{name: "wrong geometry type", status: 200, body: `{"code":"Ok","routes":[{"geometry":{"type":"Point","coordinates":[4.7,50.8]}}]}`},
		{name: "network failure", doErr: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockHTTP := &MockHTTPDoer{}
			if tt.doErr != nil {
				mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(nil, tt.doErr)
			} else {
				mockHTTP.On("Do", mock.AnythingOfType("*http.Request")).Return(createMockResponse(tt.status, tt.body), nil)
			}

			client := NewClientWithHTTPDoer(DefaultBaseURL, mockHTTP)
			leg, err := client.Route(context.Background(), groteMarkt, ladeuzeplein, routing.Walking)

			assert.Error(t, err)
			assert.Nil(t, leg)
			assert.Equal(t, tt.wantNoRte, errors.Is(err, routing.ErrNoRoute))
		})
	}
}

func TestRoute_HTTPServer(t *testing.T) {
	fixture := loadTestFixture(t, "leuven_foot.json")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/routed-bike/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	leg, err := client.Route(context.Background(), groteMarkt, ladeuzeplein, routing.Cycling)
	require.NoError(t, err)
	assert.Len(t, leg.Path, 6)

	// Cancelled contexts fail fast
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Route(ctx, groteMarkt, ladeuzeplein, routing.Cycling)
	assert.Error(t, err)
}
