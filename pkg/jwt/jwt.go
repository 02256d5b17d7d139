// Package jwt issues and validates the signed tokens embedded in booking
// payment links.
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	// PaymentToken authorizes access to one booking on the payment page
	PaymentToken TokenType = "payment"
)

// Claims represents the JWT claims structure
type Claims struct {
	BookingReference string    `json:"booking_reference"`
	Phone            string    `json:"phone"`
	TokenType        TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Service handles JWT operations
type Service struct {
	secret string
	expiry time.Duration
}

// NewService creates a new JWT service
func NewService(secret string, expiry time.Duration) *Service {
	return &Service{
		secret: secret,
		expiry: expiry,
	}
}

// GeneratePaymentToken generates a token scoped to one booking reference
func (s *Service) GeneratePaymentToken(bookingReference, phone string) (string, error) {
	now := time.Now()
	claims := Claims{
		BookingReference: bookingReference,
		Phone:            phone,
		TokenType:        PaymentToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "remmie-booking",
			Subject:   bookingReference,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign payment token: %w", err)
	}

	return signed, nil
}

// ValidatePaymentToken validates a payment token and returns its claims
func (s *Service) ValidatePaymentToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse payment token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid payment token")
	}

	if claims.TokenType != PaymentToken {
		return nil, fmt.Errorf("invalid token type: %s", claims.TokenType)
	}

	return claims, nil
}
