package handlers

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/remmie/whatsapp-booking-backend/internal/models"
	"github.com/remmie/whatsapp-booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// BookingReader is the read/update surface the booking API serves.
type BookingReader interface {
	GetByReference(reference string) (*models.Booking, error)
	GetByPhone(phoneNumber string) ([]models.Booking, error)
	GetByPaymentStatus(status models.PaymentStatus) ([]models.Booking, error)
	UpdatePaymentStatus(reference string, status models.PaymentStatus, paymentReference *string) error
}

// BookingHandler serves the booking lookup and payment status API used by
// the payment page.
type BookingHandler struct {
	bookings BookingReader
	tokens   *jwt.Service
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingReader, tokens *jwt.Service, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		tokens:   tokens,
		logger:   logger,
	}
}

// GetByReference handles GET /api/v1/bookings/:reference?token=...
// The token is the signed payment token embedded in the payment link; it must
// be valid and issued for the requested reference.
func (h *BookingHandler) GetByReference(c *gin.Context) {
	reference := c.Param("reference")
	token := c.Query("token")

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "Payment token is required",
		})
		return
	}

	claims, err := h.tokens.ValidatePaymentToken(token)
	if err != nil || claims.BookingReference != reference {
		h.logger.WithError(err).WithField("reference", reference).Warn("Rejected payment token")
		c.JSON(http.StatusUnauthorized, gin.H{
			"status":  "error",
			"message": "Invalid or expired payment token",
		})
		return
	}

	booking, err := h.bookings.GetByReference(reference)
	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Booking not found",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to retrieve booking")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to retrieve booking",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"booking": booking,
	})
}

// GetByPhone handles GET /api/v1/bookings/phone/:phone
func (h *BookingHandler) GetByPhone(c *gin.Context) {
	phone := c.Param("phone")

	bookings, err := h.bookings.GetByPhone(phone)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list bookings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to retrieve bookings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// ListByPaymentStatus handles GET /api/v1/bookings/payment-status/:status
func (h *BookingHandler) ListByPaymentStatus(c *gin.Context) {
	status := models.PaymentStatus(c.Param("status"))

	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid payment status",
		})
		return
	}

	bookings, err := h.bookings.GetByPaymentStatus(status)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list bookings by payment status")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to retrieve bookings",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"bookings": bookings,
		"count":    len(bookings),
	})
}

type paymentStatusRequest struct {
	PaymentStatus    models.PaymentStatus `json:"payment_status" binding:"required"`
	PaymentReference *string              `json:"payment_reference"`
}

// UpdatePaymentStatus handles POST /api/v1/bookings/:reference/payment-status
func (h *BookingHandler) UpdatePaymentStatus(c *gin.Context) {
	reference := c.Param("reference")

	var req paymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid request format",
		})
		return
	}

	if !req.PaymentStatus.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid payment status",
		})
		return
	}

	if err := h.bookings.UpdatePaymentStatus(reference, req.PaymentStatus, req.PaymentReference); err != nil {
		if err.Error() == "booking not found" {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Booking not found",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to update payment status")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Failed to update payment status",
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"reference": reference,
		"status":    req.PaymentStatus,
	}).Info("Payment status updated")

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Payment status updated",
	})
}
