package model

import (
	"fmt"
	"strconv"
	"time"
)

// TripStatus is the lifecycle state of a published trip.
type TripStatus string

const (
	TripPrepare TripStatus = "PREPARE" // open for claims
	TripFull    TripStatus = "FULL"    // no seats left
	TripRunning TripStatus = "RUNNING" // departed
	TripFinish  TripStatus = "FINISH"  // every order submitted
	TripCancel  TripStatus = "CANCEL"  // withdrawn by the owner
)

// Hash field names of a Trip:<id> record.  current_seat is the only field
// mutated concurrently and is only ever changed with HINCRBY.
const (
	TripFieldOwner        = "owner"
	TripFieldSeatCount    = "seat_count"
	TripFieldCurrentSeat  = "current_seat"
	TripFieldPrice        = "price"
	TripFieldStatus       = "status"
	TripFieldStart        = "start"
	TripFieldEnd          = "end"
	TripFieldStartTime    = "start_time"
	TripFieldMessage      = "message"
	TripFieldVehiclePlate = "vehicle_plate"
	TripFieldVehicleModel = "vehicle_model"
	TripFieldTel          = "tel"
	TripFieldCreatedAt    = "created_at"

	// Owed to the owner once the trip finished; removed when the payout
	// request has been sent.
	TripFieldPayoutPending = "payout_pending"
)

// Trip is a ride offer published by an owner (driver).
//
// Fields:
//
//	ID           – uuid assigned at publication.
//	OwnerID      – profile id of the driver.
//	SeatCount    – total capacity.
//	CurrentSeat  – seats still available; 0 ≤ CurrentSeat ≤ SeatCount.
//	PriceCents   – price per seat.
//	Start, End   – departure and destination venues.
//	StartTime    – scheduled departure.
//	Status       – see TripStatus.
//	Message      – optional free text from the driver.
//	VehiclePlate – licence plate shown to passengers.
//	VehicleModel – car model shown to passengers.
//	Tel          – driver contact number.
type Trip struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	SeatCount    int64      `json:"seat_count"`
	CurrentSeat  int64      `json:"current_seat"`
	PriceCents   int64      `json:"price_cents"`
	Start        string     `json:"start"`
	End          string     `json:"end"`
	StartTime    time.Time  `json:"start_time"`
	Status       TripStatus `json:"status"`
	Message      string     `json:"message,omitempty"`
	VehiclePlate string     `json:"vehicle_plate,omitempty"`
	VehicleModel string     `json:"vehicle_model,omitempty"`
	Tel          string     `json:"tel,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Hash encodes the trip as Trip:<id> hash fields.
func (t *Trip) Hash() map[string]interface{} {
	return map[string]interface{}{
		TripFieldOwner:        t.OwnerID,
		TripFieldSeatCount:    t.SeatCount,
		TripFieldCurrentSeat:  t.CurrentSeat,
		TripFieldPrice:        t.PriceCents,
		TripFieldStatus:       string(t.Status),
		TripFieldStart:        t.Start,
		TripFieldEnd:          t.End,
		TripFieldStartTime:    t.StartTime.UTC().Format(time.RFC3339),
		TripFieldMessage:      t.Message,
		TripFieldVehiclePlate: t.VehiclePlate,
		TripFieldVehicleModel: t.VehicleModel,
		TripFieldTel:          t.Tel,
		TripFieldCreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// TripFromHash decodes a Trip:<id> hash.  Numeric and time fields must be
// well formed; anything else is a DecodeError.
func TripFromHash(id string, h map[string]string) (*Trip, error) {
	t := &Trip{
		ID:           id,
		OwnerID:      h[TripFieldOwner],
		Status:       TripStatus(h[TripFieldStatus]),
		Start:        h[TripFieldStart],
		End:          h[TripFieldEnd],
		Message:      h[TripFieldMessage],
		VehiclePlate: h[TripFieldVehiclePlate],
		VehicleModel: h[TripFieldVehicleModel],
		Tel:          h[TripFieldTel],
	}
	var err error
	if t.SeatCount, err = intField(h, TripFieldSeatCount); err != nil {
		return nil, err
	}
	if t.CurrentSeat, err = intField(h, TripFieldCurrentSeat); err != nil {
		return nil, err
	}
	if t.PriceCents, err = intField(h, TripFieldPrice); err != nil {
		return nil, err
	}
	if t.StartTime, err = timeField(h, TripFieldStartTime); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = timeField(h, TripFieldCreatedAt); err != nil {
		return nil, err
	}
	return t, nil
}

// DecodeError reports a malformed field in a stored record.
type DecodeError struct {
	Field string
	Value string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode field %q: invalid value %q", e.Field, e.Value)
}

func intField(h map[string]string, field string) (int64, error) {
	v, ok := h[field]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &DecodeError{Field: field, Value: v}
	}
	return n, nil
}

func timeField(h map[string]string, field string) (time.Time, error) {
	v, ok := h[field]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &DecodeError{Field: field, Value: v}
	}
	return t, nil
}
