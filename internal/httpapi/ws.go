package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// inbound is the client-to-server wire frame.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	EntityID string            `json:"entity_id"`
	Kind     models.EntityKind `json:"kind"`
	Token    string            `json:"token,omitempty"`
}

type ridePayload struct {
	RideID string `json:"ride_id"`
}

type completePayload struct {
	RideID string `json:"ride_id"`
	Code   string `json:"code"`
}

type locationPayload struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// handleWS owns one connection for its whole life: upgrade, join, event loop,
// disconnect cleanup. Every inbound event is handled independently — a failed
// operation becomes an error event on this channel and nothing else.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	observability.WSConnections.Inc()
	defer observability.WSConnections.Dec()

	session := presence.NewSession(conn)
	defer func() {
		s.registry.Unbind(context.Background(), session)
		_ = session.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-stopPing:
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		entityID, kind, joined := s.registry.EntityOf(session)
		if msg.Event == "join" {
			s.handleJoin(ctx, session, msg.Data)
			continue
		}
		if !joined {
			notify.SendError(session, models.ErrorCode(models.ErrAuth), "join first", "")
			continue
		}
		s.handleEvent(ctx, session, entityID, kind, msg)
	}
}

func (s *Server) handleJoin(ctx context.Context, session presence.Channel, data json.RawMessage) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.EntityID == "" || !p.Kind.Valid() {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "join needs entity_id and kind", "")
		return
	}
	if err := s.verifier.Verify(p.Token, p.EntityID, p.Kind); err != nil {
		notify.SendError(session, models.ErrorCode(err), "identity check failed", "")
		return
	}
	if err := s.registry.Bind(ctx, p.EntityID, p.Kind, session); err != nil {
		notify.SendError(session, models.ErrorCode(err), err.Error(), "")
		return
	}
	_ = session.Send("joined", map[string]string{"entity_id": p.EntityID, "kind": string(p.Kind)})
}

func (s *Server) handleEvent(ctx context.Context, session presence.Channel, entityID string, kind models.EntityKind, msg inbound) {
	switch msg.Event {
	case "request-ride":
		s.wsRequestRide(ctx, session, entityID, kind, msg.Data)
	case "accept-ride":
		s.wsAcceptRide(ctx, session, entityID, kind, msg.Data)
	case "confirm-ride":
		s.wsConfirmRide(ctx, session, entityID, kind, msg.Data)
	case "ride-completed":
		s.wsCompleteRide(ctx, session, entityID, kind, msg.Data)
	case "cancel-ride":
		s.wsCancelRide(ctx, session, entityID, msg.Data)
	case "update-location":
		s.wsUpdateLocation(ctx, session, entityID, kind, msg.Data)
	default:
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "unknown event "+msg.Event, "")
	}
}

// wsRequestRide triggers dispatch for a pending ride the rider created.
func (s *Server) wsRequestRide(ctx context.Context, session presence.Channel, entityID string, kind models.EntityKind, data json.RawMessage) {
	if kind != models.KindRider {
		notify.SendError(session, models.ErrorCode(models.ErrAuth), "only riders request rides", "")
		return
	}
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "request-ride needs ride_id", "")
		return
	}
	ride, err := s.rides.Store.Get(ctx, p.RideID)
	if err != nil {
		notify.SendError(session, models.ErrorCode(err), "ride not found", p.RideID)
		return
	}
	if ride.RiderID != entityID {
		notify.SendError(session, models.ErrorCode(models.ErrAuth), "not your ride", p.RideID)
		return
	}
	if ride.Status != models.StatusPending {
		notify.SendError(session, models.ErrorCode(models.ErrConflict), "ride is not pending", p.RideID)
		return
	}
	if _, err := s.broadcaster.Dispatch(ctx, ride); err != nil {
		s.logger.Error("dispatch failed", "ride_id", ride.ID, "error", err)
		notify.SendError(session, "internal", "dispatch failed", p.RideID)
	}
}

func (s *Server) wsAcceptRide(ctx context.Context, session presence.Channel, entityID string, kind models.EntityKind, data json.RawMessage) {
	if kind != models.KindCaptain {
		notify.SendError(session, models.ErrorCode(models.ErrAuth), "only captains accept rides", "")
		return
	}
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "accept-ride needs ride_id", "")
		return
	}
	ride, err := s.rides.Claim(ctx, p.RideID, entityID)
	if err != nil && ride == nil {
		notify.SendError(session, models.ErrorCode(err), claimMessage(err), p.RideID)
		return
	}
	// the claim stood even if the rider was unreachable
	if err != nil {
		s.logger.Warn("rider unreachable after claim", "ride_id", ride.ID, "error", err)
	}
	_ = session.Send(notify.EventRideAccepted, ride)
}

func claimMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrConflict):
		return "another captain got there first"
	case errors.Is(err, models.ErrNotFound):
		return "that ride no longer exists"
	default:
		return err.Error()
	}
}

func (s *Server) wsConfirmRide(ctx context.Context, session presence.Channel, entityID string, kind models.EntityKind, data json.RawMessage) {
	if kind != models.KindRider {
		notify.SendError(session, models.ErrorCode(models.ErrAuth), "only riders confirm rides", "")
		return
	}
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "confirm-ride needs ride_id", "")
		return
	}
	if _, err := s.rides.Confirm(ctx, p.RideID, entityID); err != nil && !errors.Is(err, notify.ErrUnreachable) {
		notify.SendError(session, models.ErrorCode(err), err.Error(), p.RideID)
	}
}

func (s *Server) wsCompleteRide(ctx context.Context, session presence.Channel, entityID string, kind models.EntityKind, data json.RawMessage) {
	if kind != models.KindCaptain {
		notify.SendError(session, models.ErrorCode(models.ErrAuth), "only captains complete rides", "")
		return
	}
	var p completePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" || p.Code == "" {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "ride-completed needs ride_id and code", "")
		return
	}
	if _, err := s.rides.Complete(ctx, p.RideID, entityID, p.Code); err != nil {
		notify.SendError(session, models.ErrorCode(err), err.Error(), p.RideID)
	}
}

func (s *Server) wsCancelRide(ctx context.Context, session presence.Channel, entityID string, data json.RawMessage) {
	var p ridePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RideID == "" {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "cancel-ride needs ride_id", "")
		return
	}
	if _, err := s.rides.Cancel(ctx, p.RideID, entityID); err != nil {
		notify.SendError(session, models.ErrorCode(err), err.Error(), p.RideID)
	}
}

// wsUpdateLocation overwrites the captain's last-known location,
// latest-write-wins, and feeds the candidate index and the event stream.
func (s *Server) wsUpdateLocation(ctx context.Context, session presence.Channel, entityID string, kind models.EntityKind, data json.RawMessage) {
	if kind != models.KindCaptain {
		notify.SendError(session, models.ErrorCode(models.ErrAuth), "only captains report locations", "")
		return
	}
	var p locationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		notify.SendError(session, models.ErrorCode(models.ErrValidation), "bad location payload", "")
		return
	}
	loc := models.Coord{Lat: p.Lat, Lon: p.Lon}
	if err := s.dir.UpdateLocation(ctx, entityID, loc); err != nil {
		notify.SendError(session, models.ErrorCode(err), "location update failed", "")
		return
	}
	captain, err := s.dir.Captain(ctx, entityID)
	if err != nil {
		notify.SendError(session, models.ErrorCode(err), "location update failed", "")
		return
	}
	if err := s.geo.Upsert(ctx, *captain); err != nil {
		s.logger.Warn("geo upsert failed", "captain_id", entityID, "error", err)
	}
	if s.producer != nil {
		if err := s.producer.PublishLocation(ctx, *captain); err != nil {
			s.logger.Warn("location publish failed", "captain_id", entityID, "error", err)
		}
	}
	_ = session.Send(notify.EventLocationUpdated, map[string]any{"captain_id": entityID, "loc": loc})
}
