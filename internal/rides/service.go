// Package rides owns the ride lifecycle. The Service is the only component
// that mutates ride records, and every transition goes through a conditional
// update in the Store, so concurrent claims resolve to exactly one winner.
package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/otp"
)

// Lifecycle events published to the event stream for downstream consumers.
const (
	EventRequested = "ride-requested"
	EventAccepted  = "ride-accepted"
	EventConfirmed = "ride-confirmed"
	EventCompleted = "ride-completed"
	EventCancelled = "ride-cancelled"
)

// Quoter prices a trip per vehicle class.
type Quoter interface {
	Quote(ctx context.Context, pickup, dest models.Coord) (map[models.VehicleClass]int64, error)
}

// Notifier is the slice of the notification fan-out the service uses.
type Notifier interface {
	Notify(entityID, event string, payload any) error
}

// OfferBook records which captains were offered a ride, so revocations are
// scoped to them instead of every connection.
type OfferBook interface {
	Offered(rideID string) []string
	Clear(rideID string)
}

// EventPublisher streams lifecycle events; nil disables publishing.
type EventPublisher interface {
	PublishRideEvent(ctx context.Context, event string, r *models.Ride) error
}

type Service struct {
	Store     Store
	Dir       directory.Store
	Notif     Notifier
	Offers    OfferBook
	Events    EventPublisher
	Quote     Quoter
	OTPDigits int
	Log       *slog.Logger
}

// AcceptedPayload is what the rider sees when a captain wins the claim.
type AcceptedPayload struct {
	Ride    *models.Ride    `json:"ride"`
	Captain *models.Captain `json:"captain"`
}

// ConfirmedPayload carries the one-time code to the captain after the rider
// confirms.
type ConfirmedPayload struct {
	RideID string `json:"ride_id"`
	OTP    string `json:"otp"`
	Fare   int64  `json:"fare"`
}

type ridePayload struct {
	RideID string `json:"ride_id"`
}

type cancelledPayload struct {
	RideID      string `json:"ride_id"`
	CancelledBy string `json:"cancelled_by"`
}

// Create validates the request, prices it, generates the one-time code and
// persists the ride in pending. The code is generated exactly once here and
// never again.
func (s *Service) Create(ctx context.Context, req models.RideRequest) (*models.Ride, error) {
	if req.RiderID == "" || !req.VehicleClass.Valid() {
		return nil, fmt.Errorf("create ride: %w", models.ErrValidation)
	}
	if _, err := s.Dir.Rider(ctx, req.RiderID); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	quotes, err := s.Quote.Quote(ctx, req.Pickup, req.Destination)
	if err != nil {
		return nil, fmt.Errorf("create ride: quote: %w", err)
	}
	fare, ok := quotes[req.VehicleClass]
	if !ok {
		return nil, fmt.Errorf("create ride: no fare for class %s: %w", req.VehicleClass, models.ErrValidation)
	}
	digits := s.OTPDigits
	if digits == 0 {
		digits = 6
	}
	code, err := otp.Generate(digits)
	if err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	r := &models.Ride{
		ID:           uuid.NewString(),
		RiderID:      req.RiderID,
		Pickup:       req.Pickup,
		Destination:  req.Destination,
		PickupText:   req.PickupText,
		DestText:     req.DestText,
		VehicleClass: req.VehicleClass,
		Fare:         fare,
		OTP:          code,
		Status:       models.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := s.Store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	observability.RidesRequested.Inc()
	s.publish(ctx, EventRequested, r)
	s.Log.Info("ride created", "ride_id", r.ID, "rider_id", r.RiderID, "class", string(r.VehicleClass), "fare", r.Fare)
	return r, nil
}

// Claim resolves the multi-captain race. Exactly one concurrent claim wins;
// the rest get ErrConflict and no mutation. On success the losing candidates
// are told the ride is gone and the rider is told who won. If the claim stood
// but the rider could not be reached, the ride is returned together with the
// delivery error — the claim is never rolled back for that.
func (s *Service) Claim(ctx context.Context, rideID, captainID string) (*models.Ride, error) {
	if rideID == "" || captainID == "" {
		return nil, fmt.Errorf("claim: %w", models.ErrValidation)
	}
	captain, err := s.Dir.Captain(ctx, captainID)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	r, err := s.Store.Claim(ctx, rideID, captainID)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			observability.ClaimConflicts.Inc()
		}
		return nil, fmt.Errorf("claim: %w", err)
	}
	observability.ClaimsWon.Inc()
	s.Log.Info("ride claimed", "ride_id", r.ID, "captain_id", captainID)

	// revoke the offer for everyone else who saw it
	for _, loser := range s.Offers.Offered(rideID) {
		if loser == captainID {
			continue
		}
		_ = s.Notif.Notify(loser, notify.EventRideUnavailable, ridePayload{RideID: rideID})
	}
	s.Offers.Clear(rideID)
	s.publish(ctx, EventAccepted, r)

	if err := s.Notif.Notify(r.RiderID, notify.EventRideAccepted, AcceptedPayload{Ride: r, Captain: captain}); err != nil {
		return r, fmt.Errorf("claim stood but rider notification failed: %w", err)
	}
	return r, nil
}

// Confirm moves an accepted ride to confirmed and delivers the one-time code
// to the captain, with an acknowledgment to the rider.
func (s *Service) Confirm(ctx context.Context, rideID, riderID string) (*models.Ride, error) {
	cur, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	if cur.RiderID != riderID {
		return nil, fmt.Errorf("confirm: ride %s does not belong to rider %s: %w", rideID, riderID, models.ErrAuth)
	}
	if cur.Status != models.StatusAccepted {
		return nil, fmt.Errorf("confirm: ride %s is %s: %w", rideID, cur.Status, models.ErrConflict)
	}
	r, err := s.Store.Confirm(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("confirm: %w", err)
	}
	s.Log.Info("ride confirmed", "ride_id", r.ID)
	s.publish(ctx, EventConfirmed, r)

	if err := s.Notif.Notify(r.CaptainID, notify.EventRideConfirmed, ConfirmedPayload{RideID: r.ID, OTP: r.OTP, Fare: r.Fare}); err != nil {
		return r, fmt.Errorf("confirm stood but captain notification failed: %w", err)
	}
	_ = s.Notif.Notify(r.RiderID, notify.EventRideConfirmed, ridePayload{RideID: r.ID})
	return r, nil
}

// Complete redeems the one-time code. Any code not byte-equal to the stored
// one fails with ErrInvalidCode and leaves the ride confirmed.
func (s *Service) Complete(ctx context.Context, rideID, captainID, code string) (*models.Ride, error) {
	cur, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if cur.CaptainID != captainID {
		return nil, fmt.Errorf("complete: ride %s is not assigned to captain %s: %w", rideID, captainID, models.ErrAuth)
	}
	if cur.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("complete: ride %s is %s: %w", rideID, cur.Status, models.ErrConflict)
	}
	if !otp.Match(cur.OTP, code) {
		return nil, fmt.Errorf("complete: ride %s: %w", rideID, models.ErrInvalidCode)
	}
	r, err := s.Store.Complete(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	s.Log.Info("ride completed", "ride_id", r.ID, "captain_id", captainID, "fare", r.Fare)
	s.publish(ctx, EventCompleted, r)

	_ = s.Notif.Notify(r.RiderID, notify.EventRideCompleted, r)
	_ = s.Notif.Notify(r.CaptainID, notify.EventRideCompleted, r)
	return r, nil
}

// Cancel is allowed from pending or accepted only, by either party to the
// ride. The counterparty, if any is bound, hears about it.
func (s *Service) Cancel(ctx context.Context, rideID, actorID string) (*models.Ride, error) {
	cur, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	if actorID != cur.RiderID && actorID != cur.CaptainID {
		return nil, fmt.Errorf("cancel: %s is not a party to ride %s: %w", actorID, rideID, models.ErrAuth)
	}
	r, err := s.Store.Cancel(ctx, rideID, actorID)
	if err != nil {
		return nil, fmt.Errorf("cancel: %w", err)
	}
	s.Log.Info("ride cancelled", "ride_id", r.ID, "by", actorID)

	// a pending ride may still have live offers out
	for _, offered := range s.Offers.Offered(rideID) {
		_ = s.Notif.Notify(offered, notify.EventRideUnavailable, ridePayload{RideID: rideID})
	}
	s.Offers.Clear(rideID)
	s.publish(ctx, EventCancelled, r)

	payload := cancelledPayload{RideID: r.ID, CancelledBy: actorID}
	if actorID == r.RiderID && r.CaptainID != "" {
		_ = s.Notif.Notify(r.CaptainID, notify.EventRideCancelled, payload)
	}
	if actorID == r.CaptainID {
		_ = s.Notif.Notify(r.RiderID, notify.EventRideCancelled, payload)
	}
	return r, nil
}

func (s *Service) publish(ctx context.Context, event string, r *models.Ride) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishRideEvent(ctx, event, r); err != nil {
		s.Log.Warn("ride event publish failed", "event", event, "ride_id", r.ID, "error", err)
	}
}
