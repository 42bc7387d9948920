package geo

import (
	"context"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestNearbyFiltersDutyClassAndRadius(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	put := func(id string, lat float64, class models.VehicleClass, duty models.DutyStatus) {
		_ = idx.Upsert(ctx, models.Captain{ID: id, Loc: models.Coord{Lat: lat, Lon: 0}, VehicleClass: class, Duty: duty})
	}
	put("near-car", 0.001, models.ClassCar, models.DutyActive)       // ~111m
	put("near-auto", 0.001, models.ClassAuto, models.DutyActive)     // wrong class
	put("offduty", 0.001, models.ClassCar, models.DutyInactive)      // inactive
	put("far-car", 1.0, models.ClassCar, models.DutyActive)          // ~111km

	got, err := idx.Nearby(ctx, models.Coord{}, 5000, models.ClassCar, 10)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 1 || got[0].ID != "near-car" {
		t.Fatalf("expected only near-car, got %+v", got)
	}
}

func TestNearbyOrdersByDistanceAndLimits(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	for i, id := range []string{"c3", "c1", "c2"} {
		lat := []float64{0.003, 0.001, 0.002}[i]
		_ = idx.Upsert(ctx, models.Captain{ID: id, Loc: models.Coord{Lat: lat}, VehicleClass: models.ClassCar, Duty: models.DutyActive})
	}
	got, err := idx.Nearby(ctx, models.Coord{}, 5000, models.ClassCar, 2)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c1" || got[1].ID != "c2" {
		t.Fatalf("expected [c1 c2], got %+v", got)
	}
}

func TestSetDutyAffectsNearby(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	_ = idx.Upsert(ctx, models.Captain{ID: "a", VehicleClass: models.ClassCar, Duty: models.DutyActive})
	_ = idx.SetDuty(ctx, "a", models.DutyInactive)
	got, _ := idx.Nearby(ctx, models.Coord{}, 5000, models.ClassCar, 10)
	if len(got) != 0 {
		t.Fatalf("inactive captain must not be a candidate, got %+v", got)
	}
}
