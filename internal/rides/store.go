package rides

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Store is the persistence surface for rides. Every transition method is a
// conditional update: it mutates only if the ride is in the required state,
// and reports ErrConflict otherwise. Claim is the race-critical one — with a
// shared backing store it must be a single compare-and-set, not a read
// followed by a blind write.
type Store interface {
	Create(ctx context.Context, r *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)

	// Claim sets captainID and status=accepted iff status=pending and no
	// captain is set. Exactly one of N concurrent claims can succeed.
	Claim(ctx context.Context, rideID, captainID string) (*models.Ride, error)

	// Confirm moves accepted -> confirmed.
	Confirm(ctx context.Context, rideID string) (*models.Ride, error)

	// Complete moves confirmed -> completed and stamps the completion time.
	Complete(ctx context.Context, rideID string) (*models.Ride, error)

	// Cancel moves pending|accepted -> cancelled and records who cancelled.
	Cancel(ctx context.Context, rideID, actorID string) (*models.Ride, error)
}

// MemoryStore keeps rides in a map. The mutex makes every conditional update
// atomic, which is all the claim primitive needs in a single process.
type MemoryStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]*models.Ride)}
}

func (m *MemoryStore) Create(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[r.ID]; ok {
		return fmt.Errorf("ride %s already exists: %w", r.ID, models.ErrConflict)
	}
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", id, models.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Claim(_ context.Context, rideID, captainID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", rideID, models.ErrNotFound)
	}
	if r.Status != models.StatusPending || r.CaptainID != "" {
		return nil, fmt.Errorf("ride %s already claimed or not pending: %w", rideID, models.ErrConflict)
	}
	now := time.Now()
	r.CaptainID = captainID
	r.Status = models.StatusAccepted
	r.AcceptedAt = &now
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) Confirm(_ context.Context, rideID string) (*models.Ride, error) {
	return m.transition(rideID, models.StatusAccepted, func(r *models.Ride, now time.Time) {
		r.Status = models.StatusConfirmed
		r.ConfirmedAt = &now
	})
}

func (m *MemoryStore) Complete(_ context.Context, rideID string) (*models.Ride, error) {
	return m.transition(rideID, models.StatusConfirmed, func(r *models.Ride, now time.Time) {
		r.Status = models.StatusCompleted
		r.CompletedAt = &now
	})
}

func (m *MemoryStore) Cancel(_ context.Context, rideID, actorID string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", rideID, models.ErrNotFound)
	}
	if r.Status != models.StatusPending && r.Status != models.StatusAccepted {
		return nil, fmt.Errorf("ride %s not cancellable from %s: %w", rideID, r.Status, models.ErrConflict)
	}
	now := time.Now()
	r.Status = models.StatusCancelled
	r.CancelledBy = actorID
	r.CancelledAt = &now
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) transition(rideID string, from models.RideStatus, apply func(*models.Ride, time.Time)) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("ride %s: %w", rideID, models.ErrNotFound)
	}
	if r.Status != from {
		return nil, fmt.Errorf("ride %s is %s, not %s: %w", rideID, r.Status, from, models.ErrConflict)
	}
	apply(r, time.Now())
	cp := *r
	return &cp, nil
}
