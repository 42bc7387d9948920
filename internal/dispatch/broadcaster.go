// Package dispatch fans a pending ride out to the currently eligible
// captains. The candidate set is a snapshot from the geo index and may be
// stale by the time offers land; the claim primitive sorts that out.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
)

// Notifier is the slice of the fan-out the broadcaster needs.
type Notifier interface {
	Notify(entityID, event string, payload any) error
}

type Broadcaster struct {
	Geo     geo.Geo
	Notif   Notifier
	RadiusM float64
	Limit   int
	Log     *slog.Logger

	mu     sync.Mutex
	offers map[string][]string // rideID -> candidate captain IDs
}

func NewBroadcaster(g geo.Geo, n Notifier, radiusM float64, limit int, log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		Geo:     g,
		Notif:   n,
		RadiusM: radiusM,
		Limit:   limit,
		Log:     log,
		offers:  make(map[string][]string),
	}
}

// Dispatch queries candidates and sends the offer to each concurrently,
// fire-and-forget per recipient: one dead channel never blocks the rest.
// With zero candidates the rider gets exactly one no-captains message and
// the ride stays pending; there is no automatic retry.
func (b *Broadcaster) Dispatch(ctx context.Context, ride *models.Ride) (int, error) {
	cands, err := b.Geo.Nearby(ctx, ride.Pickup, b.RadiusM, ride.VehicleClass, b.Limit)
	if err != nil {
		return 0, fmt.Errorf("dispatch ride %s: candidates: %w", ride.ID, err)
	}
	if len(cands) == 0 {
		observability.NoCandidates.Inc()
		b.Log.Info("no captains available", "ride_id", ride.ID, "class", string(ride.VehicleClass))
		_ = b.Notif.Notify(ride.RiderID, notify.EventNoCaptains, map[string]string{"ride_id": ride.ID})
		return 0, nil
	}

	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.ID)
	}
	b.mu.Lock()
	b.offers[ride.ID] = ids
	b.mu.Unlock()

	offer := models.OfferFromRide(ride)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(captainID string) {
			defer wg.Done()
			if err := b.Notif.Notify(captainID, notify.EventNewRideRequest, offer); err != nil {
				b.Log.Debug("offer not delivered", "ride_id", ride.ID, "captain_id", captainID, "error", err)
				return
			}
			observability.OffersSent.Inc()
		}(id)
	}
	wg.Wait()
	b.Log.Info("ride dispatched", "ride_id", ride.ID, "candidates", len(ids))
	return len(ids), nil
}

// Offered returns the candidate set recorded at dispatch time.
func (b *Broadcaster) Offered(rideID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.offers[rideID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Clear drops the offer record once the ride has left pending.
func (b *Broadcaster) Clear(rideID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.offers, rideID)
}
