package presence

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
)

type fakeChannel struct {
	sent   []string
	closed bool
}

func (f *fakeChannel) Send(event string, _ any) error {
	f.sent = append(f.sent, event)
	return nil
}
func (f *fakeChannel) Close() error { f.closed = true; return nil }

func newTestRegistry(t *testing.T) (*Registry, directory.Store) {
	t.Helper()
	dir := directory.NewMemoryStore()
	ctx := context.Background()
	_ = dir.SaveRider(ctx, &models.Rider{ID: "r1", Name: "Asha"})
	_ = dir.SaveCaptain(ctx, &models.Captain{ID: "c1", Name: "Bilal", VehicleClass: models.ClassCar, Duty: models.DutyInactive})
	return NewRegistry(dir, geo.NewIndex(), slog.Default()), dir
}

func TestBindUnknownEntityReportsNotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Bind(context.Background(), "ghost", models.KindCaptain, &fakeChannel{})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestBindCaptainActivatesDuty(t *testing.T) {
	reg, dir := newTestRegistry(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	if err := reg.Bind(ctx, "c1", models.KindCaptain, ch); err != nil {
		t.Fatalf("bind: %v", err)
	}
	c, _ := dir.Captain(ctx, "c1")
	if c.Duty != models.DutyActive {
		t.Fatalf("expected active duty, got %s", c.Duty)
	}
	got, ok := reg.ChannelOf("c1")
	if !ok || got != Channel(ch) {
		t.Fatal("ChannelOf must return the bound channel")
	}
}

func TestUnbindCaptainDeactivatesAndClears(t *testing.T) {
	reg, dir := newTestRegistry(t)
	ctx := context.Background()
	ch := &fakeChannel{}
	if err := reg.Bind(ctx, "c1", models.KindCaptain, ch); err != nil {
		t.Fatalf("bind: %v", err)
	}
	reg.Unbind(ctx, ch)
	if _, ok := reg.ChannelOf("c1"); ok {
		t.Fatal("channel must be absent after unbind")
	}
	c, _ := dir.Captain(ctx, "c1")
	if c.Duty != models.DutyInactive {
		t.Fatalf("expected inactive duty, got %s", c.Duty)
	}
	// idempotent
	reg.Unbind(ctx, ch)
	reg.Unbind(ctx, &fakeChannel{})
}

func TestRebindReplacesAndClosesOldChannel(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	old := &fakeChannel{}
	if err := reg.Bind(ctx, "r1", models.KindRider, old); err != nil {
		t.Fatalf("bind: %v", err)
	}
	fresh := &fakeChannel{}
	if err := reg.Bind(ctx, "r1", models.KindRider, fresh); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if !old.closed {
		t.Fatal("old channel must be closed on rebind")
	}
	got, _ := reg.ChannelOf("r1")
	if got != Channel(fresh) {
		t.Fatal("ChannelOf must return the fresh channel")
	}
	// the stale channel's disconnect must not clear the fresh binding
	reg.Unbind(ctx, old)
	if _, ok := reg.ChannelOf("r1"); !ok {
		t.Fatal("stale unbind cleared the fresh binding")
	}
}

func TestEntityOf(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ch := &fakeChannel{}
	if err := reg.Bind(context.Background(), "c1", models.KindCaptain, ch); err != nil {
		t.Fatalf("bind: %v", err)
	}
	id, kind, ok := reg.EntityOf(ch)
	if !ok || id != "c1" || kind != models.KindCaptain {
		t.Fatalf("unexpected entity: %s %s %v", id, kind, ok)
	}
}
