package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"tablehub/api/internal/config"
	"tablehub/api/internal/security"
)

// Signature requires the request to carry an HMAC over method, path,
// body, date and a one-time nonce, keyed on the caller's session id.
// Used on the account-switch route so a captured request cannot be
// replayed. Must run after Auth.
func Signature(cfg *config.AppConfig, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, nonce, signature, err := security.ExtractSignatureHeaders(c)
		if err != nil {
			abortSignature(c, "signature required")
			return
		}

		requestTime, err := time.Parse(time.RFC3339, date)
		if err != nil {
			abortSignature(c, "invalid signature date")
			return
		}

		if time.Since(requestTime) > 5*time.Minute || time.Until(requestTime) > 2*time.Minute {
			abortSignature(c, "request expired")
			return
		}

		rawBody, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"message": "invalid body"},
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		claimsVal, ok := c.Get("access_claims")
		if !ok {
			abortSignature(c, "invalid token")
			return
		}
		claims, ok := claimsVal.(security.AccessClaims)
		if !ok {
			abortSignature(c, "invalid token")
			return
		}

		valid := security.ValidateSignature(
			cfg.Security.SignatureSecret,
			claims.SessionID,
			signature,
			c.Request.Method,
			c.Request.URL.Path,
			c.Request.URL.RawQuery,
			rawBody,
			date,
			nonce,
		)
		if !valid {
			abortSignature(c, "invalid signature")
			return
		}

		nonceKey := fmt.Sprintf("sig:%s:%s", claims.SessionID, nonce)
		if ok := redisClient.SetNX(c, nonceKey, "1", 5*time.Minute); !ok.Val() {
			abortSignature(c, "replay detected")
			return
		}

		c.Next()
	}
}

func abortSignature(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   gin.H{"message": message},
	})
}
