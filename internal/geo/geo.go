package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Geo is the candidate finder surface used by dispatch and the location
// handlers. Nearby is a point-in-time snapshot: callers must tolerate the
// returned set being stale by the time offers are delivered.
type Geo interface {
	Nearby(ctx context.Context, origin models.Coord, radiusM float64, class models.VehicleClass, limit int) ([]models.Captain, error)
	Upsert(ctx context.Context, c models.Captain) error
	SetDuty(ctx context.Context, captainID string, duty models.DutyStatus) error
}

// Index is the in-memory fallback used when no Redis address is configured.
type Index struct {
	mu       sync.RWMutex
	captains map[string]models.Captain
}

func NewIndex() *Index {
	return &Index{captains: make(map[string]models.Captain)}
}

// Upsert overwrites the previous entry, latest-write-wins.
func (g *Index) Upsert(_ context.Context, c models.Captain) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.Updated = time.Now()
	g.captains[c.ID] = c
	return nil
}

func (g *Index) SetDuty(_ context.Context, captainID string, duty models.DutyStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.captains[captainID]
	if !ok {
		return nil
	}
	c.Duty = duty
	g.captains[captainID] = c
	return nil
}

// naive scan; in prod use geo-hash or H3
func (g *Index) Nearby(_ context.Context, origin models.Coord, radiusM float64, class models.VehicleClass, limit int) ([]models.Captain, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		c    models.Captain
		dist float64
	}
	arr := make([]pair, 0, len(g.captains))
	for _, c := range g.captains {
		if c.Duty != models.DutyActive || c.VehicleClass != class {
			continue
		}
		dist := Haversine(origin.Lat, origin.Lon, c.Loc.Lat, c.Loc.Lon)
		if dist > radiusM {
			continue
		}
		arr = append(arr, pair{c, dist})
	}
	// partial selection sort for top-N
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Captain, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].c)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
