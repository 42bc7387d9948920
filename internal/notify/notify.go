// Package notify pushes lifecycle events to connected parties. Delivery is
// best-effort: an absent or broken channel yields ErrUnreachable, never a
// panic, and never rolls back the operation that triggered it.
package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
)

// Server-to-client event names.
const (
	EventNewRideRequest  = "new-ride-request"
	EventRideUnavailable = "ride-no-longer-available"
	EventRideAccepted    = "ride-accepted"
	EventRideConfirmed   = "ride-confirmed"
	EventRideCompleted   = "ride-completed"
	EventRideCancelled   = "ride-cancelled"
	EventNoCaptains      = "no-captains-available"
	EventLocationUpdated = "location-updated"
	EventError           = "error"
)

// ErrUnreachable reports that the target has no bound channel or the send
// failed. Callers that require confirmation treat it as a hard error for
// that operation only.
var ErrUnreachable = errors.New("channel unreachable")

// ChannelLookup is the slice of the presence registry the notifier needs.
type ChannelLookup interface {
	ChannelOf(entityID string) (presence.Channel, bool)
}

type Notifier struct {
	reg ChannelLookup
	log *slog.Logger
}

func NewNotifier(reg ChannelLookup, log *slog.Logger) *Notifier {
	return &Notifier{reg: reg, log: log}
}

// Notify sends one event to the entity's current channel.
func (n *Notifier) Notify(entityID, event string, payload any) error {
	ch, ok := n.reg.ChannelOf(entityID)
	if !ok {
		observability.NotifyFailures.Inc()
		n.log.Debug("notify skipped, no channel", "entity_id", entityID, "event", event)
		return fmt.Errorf("notify %s to %s: %w", event, entityID, ErrUnreachable)
	}
	if err := ch.Send(event, payload); err != nil {
		observability.NotifyFailures.Inc()
		n.log.Warn("notify send failed", "entity_id", entityID, "event", event, "error", err)
		return fmt.Errorf("notify %s to %s: %w", event, entityID, ErrUnreachable)
	}
	return nil
}

// ErrorPayload is the structured error event body.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RideID  string `json:"ride_id,omitempty"`
}

// SendError reports an operation failure back on the originating channel.
func SendError(ch presence.Channel, code, message, rideID string) {
	if ch == nil {
		return
	}
	if err := ch.Send(EventError, ErrorPayload{Code: code, Message: message, RideID: rideID}); err != nil {
		observability.NotifyFailures.Inc()
	}
}
