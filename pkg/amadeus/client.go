// Package amadeus implements a client for the Amadeus flight-offers search
// API, with OAuth2 client-credentials token caching.
package amadeus

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNoOffers indicates the search returned no bookable offers
	ErrNoOffers = fmt.Errorf("no flight offers found")

	// ErrAuthFailed indicates API authentication failed
	ErrAuthFailed = fmt.Errorf("amadeus authentication failed")
)

// Client talks to the Amadeus self-service API
type Client struct {
	apiURL       string
	clientID     string
	clientSecret string
	client       *http.Client

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// Config holds configuration for the Amadeus client
type Config struct {
	APIURL       string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewClient creates a new Amadeus API client
func NewClient(config Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:       config.APIURL,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Segment is one leg of an offer itinerary
type Segment struct {
	CarrierCode string
	Number      string
	Origin      string
	Destination string
	DepartureAt time.Time
	ArrivalAt   time.Time
}

// Offer is one priced flight option returned by the search API
type Offer struct {
	ID       string
	Total    float64
	Currency string
	Segments []Segment
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type offersResponse struct {
	Data []offerData `json:"data"`
}

type offerData struct {
	ID          string          `json:"id"`
	Itineraries []itineraryData `json:"itineraries"`
	Price       priceData       `json:"price"`
}

type itineraryData struct {
	Segments []segmentData `json:"segments"`
}

type segmentData struct {
	Departure    endpointData `json:"departure"`
	Arrival      endpointData `json:"arrival"`
	CarrierCode  string       `json:"carrierCode"`
	Number       string       `json:"number"`
	FlightNumber string       `json:"flightNumber"`
}

type endpointData struct {
	IATACode string `json:"iataCode"`
	At       string `json:"at"`
}

type priceData struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

// getAccessToken logs in with client credentials and caches the token
func (c *Client) getAccessToken() error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	tokenURL := fmt.Sprintf("%s/v1/security/oauth2/token", c.apiURL)
	req, err := http.NewRequest(http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token endpoint returned status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return ErrAuthFailed
	}

	c.tokenMutex.Lock()
	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.tokenMutex.Unlock()

	return nil
}

// isTokenValid checks if the current token is still valid
func (c *Client) isTokenValid() bool {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()

	if c.token == "" {
		return false
	}

	// Consider the token invalid 1 minute before actual expiry
	return time.Now().Before(c.tokenExpiry.Add(-1 * time.Minute))
}

// ensureValidToken ensures we have a valid access token
func (c *Client) ensureValidToken() error {
	if c.isTokenValid() {
		return nil
	}

	return c.getAccessToken()
}

// SearchOffers searches for flight offers on one direction and date.
// Returns ErrNoOffers when the search succeeds but yields nothing and
// ErrAuthFailed when authentication is rejected.
func (c *Client) SearchOffers(origin, destination, date string, adults, max int) ([]Offer, error) {
	if err := c.ensureValidToken(); err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf(
		"%s/v2/shopping/flight-offers?originLocationCode=%s&destinationLocationCode=%s&departureDate=%s&adults=%d&max=%d",
		c.apiURL, origin, destination, date, adults, max,
	)

	req, err := http.NewRequest(http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	c.tokenMutex.RLock()
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	c.tokenMutex.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	var offersResp offersResponse
	if err := json.Unmarshal(body, &offersResp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	if len(offersResp.Data) == 0 {
		return nil, ErrNoOffers
	}

	offers := make([]Offer, 0, len(offersResp.Data))
	for _, data := range offersResp.Data {
		offer, err := convertOffer(data)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}

	return offers, nil
}

func convertOffer(data offerData) (Offer, error) {
	total, err := strconv.ParseFloat(data.Price.Total, 64)
	if err != nil {
		return Offer{}, fmt.Errorf("failed to parse offer price %q: %w", data.Price.Total, err)
	}

	offer := Offer{
		ID:       data.ID,
		Total:    total,
		Currency: data.Price.Currency,
	}

	for _, itinerary := range data.Itineraries {
		for _, seg := range itinerary.Segments {
			departureAt, err := parseSegmentTime(seg.Departure.At)
			if err != nil {
				return Offer{}, fmt.Errorf("failed to parse departure time: %w", err)
			}
			arrivalAt, err := parseSegmentTime(seg.Arrival.At)
			if err != nil {
				return Offer{}, fmt.Errorf("failed to parse arrival time: %w", err)
			}

			number := seg.Number
			if number == "" {
				number = seg.FlightNumber
			}

			offer.Segments = append(offer.Segments, Segment{
				CarrierCode: seg.CarrierCode,
				Number:      number,
				Origin:      seg.Departure.IATACode,
				Destination: seg.Arrival.IATACode,
				DepartureAt: departureAt,
				ArrivalAt:   arrivalAt,
			})
		}
	}

	return offer, nil
}

// parseSegmentTime parses Amadeus local timestamps, which come without a
// zone offset ("2025-05-15T08:30:00").
func parseSegmentTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", value)
}
