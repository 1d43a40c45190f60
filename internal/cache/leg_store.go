package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/geo"
	"github.com/Schepie/CityExplorer-sub000/internal/lib/routing"
)

// originPrecision rounds leg origins to roughly 10 m so a slowly moving
// agent keeps hitting the same entry
const originPrecision = 1e4

// LegStore caches fetched legs on top of Cache
type LegStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewLegStore creates a leg cache with the given entry lifetime
func NewLegStore(cache *Cache, ttl time.Duration) *LegStore {
	return &LegStore{cache: cache, ttl: ttl}
}

// LegKey builds the cache key for a leg request
func LegKey(profile routing.Profile, origin, dest geo.Point) string {
	return fmt.Sprintf("leg:%s:%.4f,%.4f:%.6f,%.6f", profile,
		round(origin.Latitude), round(origin.Longitude),
		dest.Latitude, dest.Longitude)
}

// Get returns a cached leg for the request, if fresh
func (s *LegStore) Get(profile routing.Profile, origin, dest geo.Point) (*routing.Leg, bool, error) {
	var leg routing.Leg
	found, err := s.cache.Get(LegKey(profile, origin, dest), &leg)
	if err != nil || !found {
		return nil, false, err
	}
	return &leg, true, nil
}

// Set stores leg for the request
func (s *LegStore) Set(profile routing.Profile, origin, dest geo.Point, leg *routing.Leg) error {
	return s.cache.Set(LegKey(profile, origin, dest), leg, s.ttl, "osrm")
}

func round(v float64) float64 {
	return math.Round(v*originPrecision) / originPrecision
}
