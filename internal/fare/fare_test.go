package fare

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type fakeRoutes struct {
	dt    DistanceTime
	err   error
	calls int
}

func (f *fakeRoutes) Route(_ context.Context, _, _ models.Coord) (DistanceTime, error) {
	f.calls++
	return f.dt, f.err
}

func TestQuoteRateTable(t *testing.T) {
	// 5 km, 10 min
	r := &fakeRoutes{dt: DistanceTime{Meters: 5000, Seconds: 600}}
	c := &Calculator{Routes: r}
	q, err := c.Quote(context.Background(), models.Coord{}, models.Coord{Lat: 0.1})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// auto: 30 + 5*10 + 10*2 = 100; car: 50 + 5*15 + 10*3 = 155; motorcycle: 20 + 5*8 + 10*1.5 = 75
	want := map[models.VehicleClass]int64{
		models.ClassAuto:       100,
		models.ClassCar:        155,
		models.ClassMotorcycle: 75,
	}
	for class, fare := range want {
		if q[class] != fare {
			t.Fatalf("class %s: expected %d, got %d", class, fare, q[class])
		}
	}
}

func TestQuoteFallsBackWhenRoutingFails(t *testing.T) {
	r := &fakeRoutes{err: errors.New("osrm down")}
	c := &Calculator{Routes: r, DefaultSpeedMps: 10}
	q, err := c.Quote(context.Background(), models.Coord{}, models.Coord{Lat: 0.01})
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if q[models.ClassCar] <= 50 {
		t.Fatalf("fallback quote must exceed the base fare, got %d", q[models.ClassCar])
	}
}

func TestQuoteUsesCache(t *testing.T) {
	r := &fakeRoutes{dt: DistanceTime{Meters: 1000, Seconds: 120}}
	c := &Calculator{Routes: r, Cache: NewCache(time.Minute)}
	a, b := models.Coord{}, models.Coord{Lat: 0.2}
	if _, err := c.Quote(context.Background(), a, b); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if _, err := c.Quote(context.Background(), a, b); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("expected 1 route call, got %d", r.calls)
	}
}
