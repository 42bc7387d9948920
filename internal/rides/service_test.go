package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
)

type recordedEvent struct {
	Entity  string
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu          sync.Mutex
	events      []recordedEvent
	unreachable map[string]bool
}

func (f *fakeNotifier) Notify(entityID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable[entityID] {
		return fmt.Errorf("notify %s to %s: %w", event, entityID, notify.ErrUnreachable)
	}
	f.events = append(f.events, recordedEvent{Entity: entityID, Event: event, Payload: payload})
	return nil
}

func (f *fakeNotifier) sent(entity, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Entity == entity && e.Event == event {
			n++
		}
	}
	return n
}

type fakeOffers struct {
	mu      sync.Mutex
	offered map[string][]string
	cleared []string
}

func (f *fakeOffers) Offered(rideID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offered[rideID]
}

func (f *fakeOffers) Clear(rideID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, rideID)
}

type fixedQuoter struct{}

func (fixedQuoter) Quote(context.Context, models.Coord, models.Coord) (map[models.VehicleClass]int64, error) {
	return map[models.VehicleClass]int64{
		models.ClassAuto:       100,
		models.ClassCar:        155,
		models.ClassMotorcycle: 75,
	}, nil
}

func newTestService(t *testing.T) (*Service, *fakeNotifier, *fakeOffers) {
	t.Helper()
	dir := directory.NewMemoryStore()
	ctx := context.Background()
	_ = dir.SaveRider(ctx, &models.Rider{ID: "rider-1", Name: "Asha"})
	for _, id := range []string{"cap-a", "cap-b", "cap-c"} {
		_ = dir.SaveCaptain(ctx, &models.Captain{ID: id, VehicleClass: models.ClassCar, Duty: models.DutyActive, Rating: 4.8})
	}
	notif := &fakeNotifier{unreachable: map[string]bool{}}
	offers := &fakeOffers{offered: map[string][]string{}}
	svc := &Service{
		Store:     NewMemoryStore(),
		Dir:       dir,
		Notif:     notif,
		Offers:    offers,
		Quote:     fixedQuoter{},
		OTPDigits: 6,
		Log:       slog.Default(),
	}
	return svc, notif, offers
}

func createRide(t *testing.T, svc *Service) *models.Ride {
	t.Helper()
	r, err := svc.Create(context.Background(), models.RideRequest{
		RiderID:      "rider-1",
		Pickup:       models.Coord{Lat: 24.86, Lon: 67.0},
		Destination:  models.Coord{Lat: 24.9, Lon: 67.1},
		VehicleClass: models.ClassCar,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestCreateGeneratesCodeAndFare(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)
	if r.Status != models.StatusPending {
		t.Fatalf("expected pending, got %s", r.Status)
	}
	if len(r.OTP) != 6 {
		t.Fatalf("expected 6-digit code, got %q", r.OTP)
	}
	if r.Fare != 155 {
		t.Fatalf("expected car fare 155, got %d", r.Fare)
	}
	if r.CaptainID != "" {
		t.Fatal("captain must be unset at creation")
	}
	stored, err := svc.Store.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.OTP != r.OTP {
		t.Fatal("stored code must match the generated one")
	}
}

func TestClaimAtMostOneWinner(t *testing.T) {
	svc, notif, offers := newTestService(t)
	r := createRide(t, svc)
	offers.offered[r.ID] = []string{"cap-a", "cap-b", "cap-c"}

	const n = 3
	captains := []string{"cap-a", "cap-b", "cap-c"}
	results := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Claim(context.Background(), r.ID, captains[i])
		}(i)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	var winner string
	for i, err := range results {
		switch {
		case err == nil:
			winners++
			winner = captains[i]
		case errors.Is(err, models.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d/%d", n-1, winners, conflicts)
	}
	got, _ := svc.Store.Get(context.Background(), r.ID)
	if got.CaptainID != winner || got.Status != models.StatusAccepted {
		t.Fatalf("ride not assigned to the single winner: %+v", got)
	}
	// both losers heard the revocation, the winner did not
	for _, c := range captains {
		want := 1
		if c == winner {
			want = 0
		}
		if n := notif.sent(c, notify.EventRideUnavailable); n != want {
			t.Fatalf("captain %s: expected %d revocations, got %d", c, want, n)
		}
	}
	if notif.sent("rider-1", notify.EventRideAccepted) != 1 {
		t.Fatal("rider must hear ride-accepted exactly once")
	}
}

func TestClaimRetryAfterLossReportsConflict(t *testing.T) {
	svc, _, offers := newTestService(t)
	r := createRide(t, svc)
	offers.offered[r.ID] = []string{"cap-a", "cap-b"}
	if _, err := svc.Claim(context.Background(), r.ID, "cap-b"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := svc.Claim(context.Background(), r.ID, "cap-a")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	got, _ := svc.Store.Get(context.Background(), r.ID)
	if got.CaptainID != "cap-b" {
		t.Fatalf("ride must stay with cap-b, got %s", got.CaptainID)
	}
}

func TestClaimUnknownRideReportsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Claim(context.Background(), "no-such-ride", "cap-a")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestClaimStandsWhenRiderUnreachable(t *testing.T) {
	svc, notif, offers := newTestService(t)
	r := createRide(t, svc)
	offers.offered[r.ID] = []string{"cap-a"}
	notif.unreachable["rider-1"] = true

	ride, err := svc.Claim(context.Background(), r.ID, "cap-a")
	if ride == nil {
		t.Fatal("claim must stand even when the rider is unreachable")
	}
	if !errors.Is(err, notify.ErrUnreachable) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	got, _ := svc.Store.Get(context.Background(), r.ID)
	if got.Status != models.StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
}

func TestConfirmDeliversCodeToCaptain(t *testing.T) {
	svc, notif, _ := newTestService(t)
	r := createRide(t, svc)
	if _, err := svc.Claim(context.Background(), r.ID, "cap-a"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	got, err := svc.Confirm(context.Background(), r.ID, "rider-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != models.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", got.Status)
	}
	found := false
	for _, e := range notif.events {
		if e.Entity == "cap-a" && e.Event == notify.EventRideConfirmed {
			p, ok := e.Payload.(ConfirmedPayload)
			if !ok || p.OTP != r.OTP {
				t.Fatalf("captain must receive the stored code, got %+v", e.Payload)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("captain never received ride-confirmed")
	}
	if notif.sent("rider-1", notify.EventRideConfirmed) != 1 {
		t.Fatal("rider must receive a confirm acknowledgment")
	}
}

func TestConfirmByWrongRiderRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	_ = svc.Dir.SaveRider(context.Background(), &models.Rider{ID: "rider-2"})
	r := createRide(t, svc)
	if _, err := svc.Claim(context.Background(), r.ID, "cap-a"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_, err := svc.Confirm(context.Background(), r.ID, "rider-2")
	if !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestConfirmBeforeAcceptRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)
	_, err := svc.Confirm(context.Background(), r.ID, "rider-1")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestCompleteWrongCodeLeavesConfirmed(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)
	_, _ = svc.Claim(context.Background(), r.ID, "cap-a")
	_, _ = svc.Confirm(context.Background(), r.ID, "rider-1")

	wrong := "000000"
	if wrong == r.OTP {
		wrong = "000001"
	}
	_, err := svc.Complete(context.Background(), r.ID, "cap-a", wrong)
	if !errors.Is(err, models.ErrInvalidCode) {
		t.Fatalf("expected InvalidCode, got %v", err)
	}
	got, _ := svc.Store.Get(context.Background(), r.ID)
	if got.Status != models.StatusConfirmed {
		t.Fatalf("status must stay confirmed, got %s", got.Status)
	}
}

func TestCompleteWithStoredCode(t *testing.T) {
	svc, notif, _ := newTestService(t)
	r := createRide(t, svc)
	_, _ = svc.Claim(context.Background(), r.ID, "cap-a")
	_, _ = svc.Confirm(context.Background(), r.ID, "rider-1")

	got, err := svc.Complete(context.Background(), r.ID, "cap-a", r.OTP)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != models.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp, got %+v", got)
	}
	if notif.sent("rider-1", notify.EventRideCompleted) != 1 {
		t.Fatal("rider must receive the ride summary")
	}
}

func TestCompleteByWrongCaptainRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)
	_, _ = svc.Claim(context.Background(), r.ID, "cap-a")
	_, _ = svc.Confirm(context.Background(), r.ID, "rider-1")
	_, err := svc.Complete(context.Background(), r.ID, "cap-b", r.OTP)
	if !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestForwardOnlyTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)

	// pending cannot jump to completed
	if _, err := svc.Complete(context.Background(), r.ID, "cap-a", r.OTP); !errors.Is(err, models.ErrAuth) && !errors.Is(err, models.ErrConflict) {
		t.Fatalf("pending ride must not complete, got %v", err)
	}

	_, _ = svc.Claim(context.Background(), r.ID, "cap-a")
	_, _ = svc.Confirm(context.Background(), r.ID, "rider-1")
	_, _ = svc.Complete(context.Background(), r.ID, "cap-a", r.OTP)

	// terminal: no claim, confirm, or cancel out of completed
	if _, err := svc.Claim(context.Background(), r.ID, "cap-b"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("claim after completed must conflict, got %v", err)
	}
	if _, err := svc.Confirm(context.Background(), r.ID, "rider-1"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("confirm after completed must conflict, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), r.ID, "rider-1"); !errors.Is(err, models.ErrConflict) {
		t.Fatalf("cancel after completed must conflict, got %v", err)
	}
	got, _ := svc.Store.Get(context.Background(), r.ID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("status moved backward to %s", got.Status)
	}
}

func TestCancelPendingRevokesOffers(t *testing.T) {
	svc, notif, offers := newTestService(t)
	r := createRide(t, svc)
	offers.offered[r.ID] = []string{"cap-a", "cap-b"}

	got, err := svc.Cancel(context.Background(), r.ID, "rider-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != models.StatusCancelled || got.CancelledBy != "rider-1" {
		t.Fatalf("unexpected cancel result: %+v", got)
	}
	for _, c := range []string{"cap-a", "cap-b"} {
		if notif.sent(c, notify.EventRideUnavailable) != 1 {
			t.Fatalf("offered captain %s must hear the revocation", c)
		}
	}
}

func TestCancelAcceptedNotifiesCounterparty(t *testing.T) {
	svc, notif, _ := newTestService(t)
	r := createRide(t, svc)
	_, _ = svc.Claim(context.Background(), r.ID, "cap-a")

	if _, err := svc.Cancel(context.Background(), r.ID, "rider-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if notif.sent("cap-a", notify.EventRideCancelled) != 1 {
		t.Fatal("assigned captain must hear the cancellation")
	}
}

func TestCancelByStrangerRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)
	_, err := svc.Cancel(context.Background(), r.ID, "cap-c")
	if !errors.Is(err, models.ErrAuth) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestCancelFromConfirmedRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	r := createRide(t, svc)
	_, _ = svc.Claim(context.Background(), r.ID, "cap-a")
	_, _ = svc.Confirm(context.Background(), r.ID, "rider-1")
	_, err := svc.Cancel(context.Background(), r.ID, "rider-1")
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}
