package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebhookSignature verifies the X-Hub-Signature-256 header Meta attaches to
// webhook deliveries. When appSecret is empty verification is disabled, which
// is only acceptable in development.
func WebhookSignature(appSecret string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if appSecret == "" {
			c.Next()
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			logger.WithError(err).Warn("Failed to read webhook body for signature check")
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		// Restore the body for downstream binding
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		header := c.GetHeader("X-Hub-Signature-256")
		signature := strings.TrimPrefix(header, "sha256=")
		if signature == header || signature == "" {
			logger.Warn("Webhook delivery missing signature header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Missing signature",
			})
			return
		}

		mac := hmac.New(sha256.New, []byte(appSecret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(signature)) {
			logger.Warn("Webhook delivery failed signature check")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "Invalid signature",
			})
			return
		}

		c.Next()
	}
}
