// Package presence binds rider and captain identities to their live channels
// and owns captain duty status. It is the sole writer of both.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

type binding struct {
	entityID string
	kind     models.EntityKind
	ch       Channel
}

// Registry is constructed once per process and injected into every component
// that needs to reach a connected party. There is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	byEntity  map[string]*binding
	byChannel map[Channel]*binding

	dir directory.Store
	geo geo.Geo
	log *slog.Logger
}

func NewRegistry(dir directory.Store, g geo.Geo, log *slog.Logger) *Registry {
	return &Registry{
		byEntity:  make(map[string]*binding),
		byChannel: make(map[Channel]*binding),
		dir:       dir,
		geo:       g,
		log:       log,
	}
}

// Bind records ch as the live channel for the entity. Captains flip to active
// duty. An unknown entity id is a NotFound error. Re-binding replaces the
// previous channel; the old one is closed.
func (r *Registry) Bind(ctx context.Context, entityID string, kind models.EntityKind, ch Channel) error {
	if entityID == "" || !kind.Valid() {
		return fmt.Errorf("bind: %w", models.ErrValidation)
	}
	switch kind {
	case models.KindRider:
		if _, err := r.dir.Rider(ctx, entityID); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
	case models.KindCaptain:
		if _, err := r.dir.Captain(ctx, entityID); err != nil {
			return fmt.Errorf("bind: %w", err)
		}
	}

	r.mu.Lock()
	old := r.byEntity[entityID]
	b := &binding{entityID: entityID, kind: kind, ch: ch}
	r.byEntity[entityID] = b
	r.byChannel[ch] = b
	if old != nil && old.ch != ch {
		delete(r.byChannel, old.ch)
	}
	r.mu.Unlock()

	// a re-join from a new connection closes the stale one
	if old != nil && old.ch != ch {
		_ = old.ch.Close()
	}

	if kind == models.KindCaptain {
		if err := r.dir.SetDuty(ctx, entityID, models.DutyActive); err != nil {
			r.log.Warn("duty update failed on bind", "captain_id", entityID, "error", err)
		}
		if err := r.geo.SetDuty(ctx, entityID, models.DutyActive); err != nil {
			r.log.Warn("geo duty update failed on bind", "captain_id", entityID, "error", err)
		}
		if old == nil {
			observability.CaptainsOnline.Inc()
		}
	}
	r.log.Info("channel bound", "entity_id", entityID, "kind", string(kind))
	return nil
}

// Unbind clears the binding owning ch. Captains flip to inactive duty.
// An unrecognized channel is a no-op, so disconnect processing is idempotent.
func (r *Registry) Unbind(ctx context.Context, ch Channel) {
	r.mu.Lock()
	b, ok := r.byChannel[ch]
	if ok {
		delete(r.byChannel, ch)
		// only clear the entity slot if it still points at this channel;
		// a re-bind may already have replaced it
		if cur := r.byEntity[b.entityID]; cur == b {
			delete(r.byEntity, b.entityID)
		} else {
			ok = false
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if b.kind == models.KindCaptain {
		if err := r.dir.SetDuty(ctx, b.entityID, models.DutyInactive); err != nil {
			r.log.Warn("duty update failed on unbind", "captain_id", b.entityID, "error", err)
		}
		if err := r.geo.SetDuty(ctx, b.entityID, models.DutyInactive); err != nil {
			r.log.Warn("geo duty update failed on unbind", "captain_id", b.entityID, "error", err)
		}
		observability.CaptainsOnline.Dec()
	}
	r.log.Info("channel unbound", "entity_id", b.entityID, "kind", string(b.kind))
}

// ChannelOf returns the current channel for the entity, or false if absent.
func (r *Registry) ChannelOf(entityID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byEntity[entityID]
	if !ok {
		return nil, false
	}
	return b.ch, true
}

// EntityOf is the reverse lookup used by the event loop to authorize that a
// frame's claimed identity matches the channel it arrived on.
func (r *Registry) EntityOf(ch Channel) (string, models.EntityKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byChannel[ch]
	if !ok {
		return "", "", false
	}
	return b.entityID, b.kind, true
}
