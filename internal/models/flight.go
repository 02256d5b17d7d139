package models

import "time"

// FlightSegment is one leg of an itinerary as shown to the user.
type FlightSegment struct {
	CarrierCode      string    `json:"carrier_code"`
	FlightNumber     string    `json:"flight_number"`
	DepartureAirport string    `json:"departure_airport"`
	DepartureTime    time.Time `json:"departure_time"`
	ArrivalAirport   string    `json:"arrival_airport"`
	ArrivalTime      time.Time `json:"arrival_time"`
}

// FlightOffer is a priced, bookable itinerary option cached in the
// conversation so a later numeric reply can resolve to it without
// re-querying the search gateway.
type FlightOffer struct {
	ID       string          `json:"id"`
	Price    float64         `json:"price"`
	Currency string          `json:"currency"`
	Segments []FlightSegment `json:"segments"`
}

// FirstSegment returns the first segment of the offer, or a zero segment
// when the offer carries none.
func (o FlightOffer) FirstSegment() FlightSegment {
	if len(o.Segments) == 0 {
		return FlightSegment{}
	}
	return o.Segments[0]
}

// FlightSelection is the frozen pair of chosen offers persisted on a booking.
// Return is nil for one-way trips.
type FlightSelection struct {
	Departure FlightOffer  `json:"departure"`
	Return    *FlightOffer `json:"return,omitempty"`
}
