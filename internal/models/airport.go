package models

// Airport is one row of the read-only reference directory.
type Airport struct {
	IATACode     string `json:"iata_code" db:"iata_code"`
	Name         string `json:"name" db:"name"`
	Municipality string `json:"municipality" db:"municipality"`
	CountryName  string `json:"country_name" db:"country_name"`
}

// LocationType classifies free-text location input against the directory.
type LocationType string

const (
	LocationTypeAirport   LocationType = "airport"
	LocationTypeCountry   LocationType = "country"
	LocationTypeCity      LocationType = "city"
	LocationTypeMultiCity LocationType = "multi_city"
	LocationTypeUnknown   LocationType = "unknown"
)

// ResolvedLocation is the outcome of classifying one free-text location.
// Code is set for airport and city results; City and Country are set when
// the directory carries them.
type ResolvedLocation struct {
	Type    LocationType `json:"type"`
	Code    string       `json:"code,omitempty"`
	Name    string       `json:"name"`
	City    string       `json:"city,omitempty"`
	Country string       `json:"country,omitempty"`
}
