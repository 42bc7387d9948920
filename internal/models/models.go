package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// EntityKind distinguishes the two parties on a channel.
type EntityKind string

const (
	KindRider   EntityKind = "rider"
	KindCaptain EntityKind = "captain"
)

func (k EntityKind) Valid() bool { return k == KindRider || k == KindCaptain }

// VehicleClass is the category a captain drives and a rider requests.
type VehicleClass string

const (
	ClassAuto       VehicleClass = "auto"
	ClassCar        VehicleClass = "car"
	ClassMotorcycle VehicleClass = "motorcycle"
)

func (v VehicleClass) Valid() bool {
	return v == ClassAuto || v == ClassCar || v == ClassMotorcycle
}

// DutyStatus tracks whether a captain is accepting offers.
type DutyStatus string

const (
	DutyActive   DutyStatus = "active"
	DutyInactive DutyStatus = "inactive"
)

// RideStatus is the lifecycle state of a ride. Transitions go forward only:
// pending -> accepted -> confirmed -> completed, with pending|accepted -> cancelled.
type RideStatus string

const (
	StatusPending   RideStatus = "pending"
	StatusAccepted  RideStatus = "accepted"
	StatusConfirmed RideStatus = "confirmed"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Rider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Captain struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Duty         DutyStatus   `json:"duty"`
	Loc          Coord        `json:"loc"`
	Rating       float64      `json:"rating"` // 0..5
	Updated      time.Time    `json:"updated"`
}

type Ride struct {
	ID           string       `json:"id"`
	RiderID      string       `json:"rider_id"`
	CaptainID    string       `json:"captain_id,omitempty"` // empty until claimed
	Pickup       Coord        `json:"pickup"`
	Destination  Coord        `json:"destination"`
	PickupText   string       `json:"pickup_text,omitempty"`
	DestText     string       `json:"destination_text,omitempty"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Fare         int64        `json:"fare"` // whole currency units, rounded at quote time
	OTP          string       `json:"-"`    // generated once at creation, immutable
	Status       RideStatus   `json:"status"`
	CancelledBy  string       `json:"cancelled_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	AcceptedAt   *time.Time   `json:"accepted_at,omitempty"`
	ConfirmedAt  *time.Time   `json:"confirmed_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
}

// RideRequest is the rider-side input that creates a ride.
type RideRequest struct {
	RiderID      string       `json:"rider_id"`
	Pickup       Coord        `json:"pickup"`
	Destination  Coord        `json:"destination"`
	PickupText   string       `json:"pickup_text,omitempty"`
	DestText     string       `json:"destination_text,omitempty"`
	VehicleClass VehicleClass `json:"vehicle_class"`
}

// RideOffer is what a candidate captain sees when a ride is dispatched.
type RideOffer struct {
	RideID       string       `json:"ride_id"`
	Pickup       Coord        `json:"pickup"`
	Destination  Coord        `json:"destination"`
	PickupText   string       `json:"pickup_text,omitempty"`
	DestText     string       `json:"destination_text,omitempty"`
	VehicleClass VehicleClass `json:"vehicle_class"`
	Fare         int64        `json:"fare"`
}

func OfferFromRide(r *Ride) RideOffer {
	return RideOffer{
		RideID:       r.ID,
		Pickup:       r.Pickup,
		Destination:  r.Destination,
		PickupText:   r.PickupText,
		DestText:     r.DestText,
		VehicleClass: r.VehicleClass,
		Fare:         r.Fare,
	}
}
