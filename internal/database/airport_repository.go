package database

import (
	"database/sql"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
)

// AirportRepository handles lookups against the read-only airports directory
type AirportRepository struct {
	db DB
}

// NewAirportRepository creates a new AirportRepository
func NewAirportRepository(db DB) *AirportRepository {
	return &AirportRepository{db: db}
}

// GetByCode retrieves an airport by its IATA code
func (r *AirportRepository) GetByCode(code string) (*models.Airport, error) {
	query := `
		SELECT iata_code, name, municipality, country_name
		FROM airports
		WHERE iata_code = $1
		LIMIT 1
	`

	return r.scanAirport(r.db.QueryRow(query, code))
}

// FindCountry finds a country whose name contains the input, preferring an
// exact match over a substring match. Returns sql.ErrNoRows when nothing
// matches.
func (r *AirportRepository) FindCountry(input string) (string, error) {
	query := `
		SELECT DISTINCT country_name,
			CASE WHEN LOWER(country_name) = LOWER($1) THEN 1 ELSE 2 END AS match_priority
		FROM airports
		WHERE country_name ILIKE '%' || $1 || '%'
		ORDER BY match_priority
		LIMIT 1
	`

	var countryName string
	var matchPriority int
	err := r.db.QueryRow(query, input).Scan(&countryName, &matchPriority)
	if err != nil {
		return "", err
	}

	return countryName, nil
}

// FindSingleAirportCity finds a municipality matching the input that is
// served by exactly one airport, returning that airport.
func (r *AirportRepository) FindSingleAirportCity(input string) (*models.Airport, error) {
	query := `
		SELECT iata_code, name, municipality, country_name
		FROM airports
		WHERE municipality ILIKE '%' || $1 || '%'
		  AND municipality IN (
			SELECT municipality
			FROM airports
			WHERE municipality ILIKE '%' || $1 || '%'
			GROUP BY municipality
			HAVING COUNT(*) = 1
		  )
		LIMIT 1
	`

	return r.scanAirport(r.db.QueryRow(query, input))
}

// FindMultiAirportCity finds a municipality matching the input that is
// served by more than one airport, returning the municipality name.
func (r *AirportRepository) FindMultiAirportCity(input string) (string, error) {
	query := `
		SELECT municipality
		FROM airports
		WHERE municipality ILIKE '%' || $1 || '%'
		GROUP BY municipality
		HAVING COUNT(*) > 1
		LIMIT 1
	`

	var municipality string
	if err := r.db.QueryRow(query, input).Scan(&municipality); err != nil {
		return "", err
	}

	return municipality, nil
}

// FindByName finds an airport whose name contains the input
func (r *AirportRepository) FindByName(input string) (*models.Airport, error) {
	query := `
		SELECT iata_code, name, municipality, country_name
		FROM airports
		WHERE name ILIKE '%' || $1 || '%'
		LIMIT 1
	`

	return r.scanAirport(r.db.QueryRow(query, input))
}

// GetByMunicipality retrieves every airport serving a municipality
func (r *AirportRepository) GetByMunicipality(municipality string) ([]models.Airport, error) {
	query := `
		SELECT iata_code, name, municipality, country_name
		FROM airports
		WHERE municipality = $1
		ORDER BY iata_code
	`

	rows, err := r.db.Query(query, municipality)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAirports(rows)
}

// SearchInCountry finds airports in a country whose municipality or name
// matches the input. Used by the country -> city sub-dialogue.
func (r *AirportRepository) SearchInCountry(input, country string) ([]models.Airport, error) {
	query := `
		SELECT iata_code, name, municipality, country_name
		FROM airports
		WHERE (municipality ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
		  AND country_name = $2
		ORDER BY iata_code
	`

	rows, err := r.db.Query(query, input, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAirports(rows)
}

// scanAirport scans a single airport
func (r *AirportRepository) scanAirport(row scanner) (*models.Airport, error) {
	airport := &models.Airport{}
	var municipality sql.NullString

	err := row.Scan(&airport.IATACode, &airport.Name, &municipality, &airport.CountryName)
	if err != nil {
		return nil, err
	}

	airport.Municipality = municipality.String

	return airport, nil
}

// scanAirports scans multiple airports from rows
func (r *AirportRepository) scanAirports(rows *sql.Rows) ([]models.Airport, error) {
	airports := []models.Airport{}

	for rows.Next() {
		airport, err := r.scanAirport(rows)
		if err != nil {
			return nil, err
		}
		airports = append(airports, *airport)
	}

	return airports, rows.Err()
}
