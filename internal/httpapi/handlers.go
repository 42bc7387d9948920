package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/models"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrAuth):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrInvalidCode):
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, map[string]string{"code": models.ErrorCode(err), "message": err.Error()})
}

type createRideBody struct {
	RiderID      string              `json:"rider_id"`
	Pickup       *models.Coord       `json:"pickup,omitempty"`
	Destination  *models.Coord       `json:"destination,omitempty"`
	PickupText   string              `json:"pickup_text,omitempty"`
	DestText     string              `json:"destination_text,omitempty"`
	VehicleClass models.VehicleClass `json:"vehicle_class"`
}

// handleCreateRide creates a pending ride. Dispatch itself is triggered over
// the rider's channel with request-ride, so a rider can create while
// reconnecting. Free-text addresses are geocoded when coordinates are absent.
func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var body createRideBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, models.ErrValidation)
		return
	}
	req := models.RideRequest{
		RiderID:      body.RiderID,
		PickupText:   body.PickupText,
		DestText:     body.DestText,
		VehicleClass: body.VehicleClass,
	}
	if body.Pickup != nil {
		req.Pickup = *body.Pickup
	}
	if body.Destination != nil {
		req.Destination = *body.Destination
	}
	if body.Pickup == nil || body.Destination == nil {
		if s.geocoder == nil {
			s.writeError(w, models.ErrValidation)
			return
		}
		if body.Pickup == nil {
			coord, formatted, err := s.geocoder.Geocode(r.Context(), body.PickupText)
			if err != nil {
				s.writeError(w, err)
				return
			}
			req.Pickup, req.PickupText = coord, formatted
		}
		if body.Destination == nil {
			coord, formatted, err := s.geocoder.Geocode(r.Context(), body.DestText)
			if err != nil {
				s.writeError(w, err)
				return
			}
			req.Destination, req.DestText = coord, formatted
		}
	}
	ride, err := s.rides.Create(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["ride_id"]
	ride, err := s.rides.Store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ride)
}

// handleFareQuote prices a trip for every vehicle class. Accepts either
// coordinates or free text.
func (s *Server) handleFareQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pickup, err := s.coordFromQuery(r, q.Get("pickup_lat"), q.Get("pickup_lon"), q.Get("pickup"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	dest, err := s.coordFromQuery(r, q.Get("dest_lat"), q.Get("dest_lon"), q.Get("destination"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	quotes, err := s.rides.Quote.Quote(r.Context(), pickup, dest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quotes)
}

func (s *Server) coordFromQuery(r *http.Request, latStr, lonStr, text string) (models.Coord, error) {
	if latStr != "" && lonStr != "" {
		lat, err1 := strconv.ParseFloat(latStr, 64)
		lon, err2 := strconv.ParseFloat(lonStr, 64)
		if err1 != nil || err2 != nil {
			return models.Coord{}, models.ErrValidation
		}
		return models.Coord{Lat: lat, Lon: lon}, nil
	}
	if text != "" && s.geocoder != nil {
		coord, _, err := s.geocoder.Geocode(r.Context(), text)
		return coord, err
	}
	return models.Coord{}, models.ErrValidation
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		http.Error(w, "geocoding not configured", http.StatusServiceUnavailable)
		return
	}
	coord, formatted, err := s.geocoder.Geocode(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"coord": coord, "address": formatted})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		http.Error(w, "geocoding not configured", http.StatusServiceUnavailable)
		return
	}
	suggestions, err := s.geocoder.Suggest(r.Context(), r.URL.Query().Get("input"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// handleCaptainLocation is the server-to-server ingest path for captain
// positions; the websocket update-location event is the captain-app path.
func (s *Server) handleCaptainLocation(w http.ResponseWriter, r *http.Request) {
	var c models.Captain
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.ID == "" {
		s.writeError(w, models.ErrValidation)
		return
	}
	if err := s.dir.UpdateLocation(r.Context(), c.ID, c.Loc); err != nil {
		s.writeError(w, err)
		return
	}
	stored, err := s.dir.Captain(r.Context(), c.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.geo.Upsert(r.Context(), *stored); err != nil {
		s.logger.Warn("geo upsert failed", "captain_id", c.ID, "error", err)
	}
	if s.producer != nil {
		_ = s.producer.PublishLocation(r.Context(), *stored)
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentOrderBody struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CustomerID string `json:"customer_id,omitempty"`
}

func (s *Server) handlePaymentOrder(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		http.Error(w, "payments not configured", http.StatusServiceUnavailable)
		return
	}
	var body paymentOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Amount <= 0 || body.Currency == "" {
		s.writeError(w, models.ErrValidation)
		return
	}
	orderID, err := s.payments.CreateOrder(r.Context(), body.Amount, body.Currency, body.CustomerID)
	if err != nil {
		s.logger.Error("payment order failed", "error", err)
		http.Error(w, "payment order failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		http.Error(w, "payments not configured", http.StatusServiceUnavailable)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
	if err != nil {
		s.writeError(w, models.ErrValidation)
		return
	}
	eventType, ok := s.payments.VerifySignature(payload, r.Header.Get("Stripe-Signature"))
	if !ok {
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}
	s.logger.Info("payment webhook", "type", eventType)
	w.WriteHeader(http.StatusNoContent)
}
