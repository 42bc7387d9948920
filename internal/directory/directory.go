// Package directory is the profile store for riders and captains. Account
// registration itself lives elsewhere; the dispatcher only reads profiles and
// writes captain duty status and last-known location.
package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

type Store interface {
	Rider(ctx context.Context, id string) (*models.Rider, error)
	Captain(ctx context.Context, id string) (*models.Captain, error)
	SaveRider(ctx context.Context, r *models.Rider) error
	SaveCaptain(ctx context.Context, c *models.Captain) error
	SetDuty(ctx context.Context, captainID string, duty models.DutyStatus) error
	UpdateLocation(ctx context.Context, captainID string, loc models.Coord) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	riders   map[string]models.Rider
	captains map[string]models.Captain
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{riders: make(map[string]models.Rider), captains: make(map[string]models.Captain)}
}

func (m *MemoryStore) Rider(_ context.Context, id string) (*models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	if !ok {
		return nil, fmt.Errorf("rider %s: %w", id, models.ErrNotFound)
	}
	out := r
	return &out, nil
}

func (m *MemoryStore) Captain(_ context.Context, id string) (*models.Captain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.captains[id]
	if !ok {
		return nil, fmt.Errorf("captain %s: %w", id, models.ErrNotFound)
	}
	out := c
	return &out, nil
}

func (m *MemoryStore) SaveRider(_ context.Context, r *models.Rider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[r.ID] = *r
	return nil
}

func (m *MemoryStore) SaveCaptain(_ context.Context, c *models.Captain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captains[c.ID] = *c
	return nil
}

func (m *MemoryStore) SetDuty(_ context.Context, captainID string, duty models.DutyStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captains[captainID]
	if !ok {
		return fmt.Errorf("captain %s: %w", captainID, models.ErrNotFound)
	}
	c.Duty = duty
	m.captains[captainID] = c
	return nil
}

func (m *MemoryStore) UpdateLocation(_ context.Context, captainID string, loc models.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.captains[captainID]
	if !ok {
		return fmt.Errorf("captain %s: %w", captainID, models.ErrNotFound)
	}
	c.Loc = loc
	c.Updated = time.Now()
	m.captains[captainID] = c
	return nil
}
