// Package fare prices a trip per vehicle class from route distance and
// duration.
package fare

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

// DistanceTime is one routed leg.
type DistanceTime struct {
	Meters  float64
	Seconds float64
}

// RouteClient resolves distance and duration between two points.
type RouteClient interface {
	Route(ctx context.Context, from, to models.Coord) (DistanceTime, error)
}

type rate struct {
	base   float64
	perKm  float64
	perMin float64
}

var rates = map[models.VehicleClass]rate{
	models.ClassAuto:       {base: 30, perKm: 10, perMin: 2},
	models.ClassCar:        {base: 50, perKm: 15, perMin: 3},
	models.ClassMotorcycle: {base: 20, perKm: 8, perMin: 1.5},
}

// Calculator quotes fares. Routes is optional; without it (or when it fails)
// the distance falls back to haversine and the duration to a flat city speed.
type Calculator struct {
	Routes          RouteClient
	Cache           *Cache
	DefaultSpeedMps float64
}

func (c *Calculator) Quote(ctx context.Context, pickup, dest models.Coord) (map[models.VehicleClass]int64, error) {
	dt, err := c.distanceTime(ctx, pickup, dest)
	if err != nil {
		return nil, fmt.Errorf("fare quote: %w", err)
	}
	km := dt.Meters / 1000
	min := dt.Seconds / 60
	out := make(map[models.VehicleClass]int64, len(rates))
	for class, r := range rates {
		out[class] = int64(math.Round(r.base + km*r.perKm + min*r.perMin))
	}
	return out, nil
}

func (c *Calculator) distanceTime(ctx context.Context, from, to models.Coord) (DistanceTime, error) {
	if c.Cache != nil {
		if dt, ok := c.Cache.Get(from, to); ok {
			return dt, nil
		}
	}
	if c.Routes != nil {
		dt, err := c.Routes.Route(ctx, from, to)
		if err == nil {
			if c.Cache != nil {
				c.Cache.Set(from, to, dt)
			}
			return dt, nil
		}
		// fall through to the naive estimate on routing failure
	}
	speed := c.DefaultSpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h default city speed
	}
	meters := geo.Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
	return DistanceTime{Meters: meters, Seconds: meters / speed}, nil
}

// Cache is a tiny in-memory cache for route lookups keyed by coords.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  DistanceTime
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lon, b.Lat, b.Lon)
}

func (c *Cache) Get(a, b models.Coord) (DistanceTime, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return DistanceTime{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return DistanceTime{}, false
	}
	return e.v, true
}

func (c *Cache) Set(a, b models.Coord, v DistanceTime) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}
