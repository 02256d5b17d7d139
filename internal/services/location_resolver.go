package services

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
)

// AirportDirectory is the read-only reference data the resolver and the
// engine classify location input against.
type AirportDirectory interface {
	GetByCode(code string) (*models.Airport, error)
	FindCountry(input string) (string, error)
	FindSingleAirportCity(input string) (*models.Airport, error)
	FindMultiAirportCity(input string) (string, error)
	FindByName(input string) (*models.Airport, error)
	GetByMunicipality(municipality string) ([]models.Airport, error)
	SearchInCountry(input, country string) ([]models.Airport, error)
}

var iataCodeRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)

// LocationResolver classifies free-text location input into airport,
// country, single-airport city, multi-airport city, or unknown.
type LocationResolver struct {
	airports AirportDirectory
}

// NewLocationResolver creates a new LocationResolver
func NewLocationResolver(airports AirportDirectory) *LocationResolver {
	return &LocationResolver{airports: airports}
}

// Resolve classifies the input. The resolution order is fixed and
// short-circuits at the first match: exact IATA code, country name (exact
// prioritized over substring), single-airport municipality, multi-airport
// municipality, airport name. Codes are checked first so city-name
// substrings cannot shadow an exact 3-letter code.
func (r *LocationResolver) Resolve(input string) (models.ResolvedLocation, error) {
	input = strings.TrimSpace(input)

	if iataCodeRegex.MatchString(input) {
		airport, err := r.airports.GetByCode(strings.ToUpper(input))
		if err == nil {
			return models.ResolvedLocation{
				Type:    models.LocationTypeAirport,
				Code:    airport.IATACode,
				Name:    airport.Name,
				City:    airport.Municipality,
				Country: airport.CountryName,
			}, nil
		}
		if err != sql.ErrNoRows {
			return models.ResolvedLocation{}, fmt.Errorf("failed to look up airport code: %w", err)
		}
	}

	country, err := r.airports.FindCountry(input)
	if err == nil {
		return models.ResolvedLocation{
			Type: models.LocationTypeCountry,
			Name: country,
		}, nil
	}
	if err != sql.ErrNoRows {
		return models.ResolvedLocation{}, fmt.Errorf("failed to look up country: %w", err)
	}

	airport, err := r.airports.FindSingleAirportCity(input)
	if err == nil {
		return models.ResolvedLocation{
			Type:    models.LocationTypeCity,
			Code:    airport.IATACode,
			Name:    airport.Municipality,
			Country: airport.CountryName,
		}, nil
	}
	if err != sql.ErrNoRows {
		return models.ResolvedLocation{}, fmt.Errorf("failed to look up city: %w", err)
	}

	municipality, err := r.airports.FindMultiAirportCity(input)
	if err == nil {
		return models.ResolvedLocation{
			Type: models.LocationTypeMultiCity,
			Name: municipality,
		}, nil
	}
	if err != sql.ErrNoRows {
		return models.ResolvedLocation{}, fmt.Errorf("failed to look up multi-airport city: %w", err)
	}

	airport, err = r.airports.FindByName(input)
	if err == nil {
		return models.ResolvedLocation{
			Type:    models.LocationTypeAirport,
			Code:    airport.IATACode,
			Name:    airport.Name,
			City:    airport.Municipality,
			Country: airport.CountryName,
		}, nil
	}
	if err != sql.ErrNoRows {
		return models.ResolvedLocation{}, fmt.Errorf("failed to look up airport name: %w", err)
	}

	return models.ResolvedLocation{Type: models.LocationTypeUnknown}, nil
}
