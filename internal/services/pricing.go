package services

import "github.com/remmie/whatsapp-booking-backend/internal/models"

// ChildFareFactor is the fixed child-discount multiplier applied uniformly
// to every fare, not per fare rule.
const ChildFareFactor = 0.8

// ComputeTotal prices an itinerary:
// (departure fare + return fare, if any) x (adults + children x 0.8).
func ComputeTotal(departure models.FlightOffer, returnOffer *models.FlightOffer, adults, children int) float64 {
	fare := departure.Price
	if returnOffer != nil {
		fare += returnOffer.Price
	}
	return fare * (float64(adults) + float64(children)*ChildFareFactor)
}
