package signature

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"giftrelay/internal/api"
	"giftrelay/internal/logger"
	"giftrelay/internal/metrics"
)

const ctxAgentID = "agent_id"

// Middleware rejects any request that does not carry a valid signature. The
// body is read once for verification and restored for the handler.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, api.MaxBodyBytes+1))
		if err != nil || len(body) > api.MaxBodyBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "request body too large or unreadable"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		agentID, err := v.Verify(c.Request.Context(), Request{
			APIKey:    c.GetHeader(HeaderAPIKey),
			Timestamp: c.GetHeader(HeaderTimestamp),
			Nonce:     c.GetHeader(HeaderNonce),
			Method:    c.Request.Method,
			Path:      c.Request.URL.RequestURI(),
			Body:      body,
			Signature: c.GetHeader(HeaderSignature),
		})
		if err != nil {
			var rejected *Error
			if errors.As(err, &rejected) {
				metrics.RecordSignatureRejection(string(rejected.Reason))
				logger.Warn("signed request rejected",
					"reason", rejected.Reason,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
				)
				c.AbortWithStatusJSON(http.StatusUnauthorized, api.SecurityErrorResponse{
					Error:  "unauthorized",
					Reason: string(rejected.Reason),
				})
				return
			}

			logger.Error("signature verification unavailable", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "signature verification unavailable"})
			return
		}

		c.Set(ctxAgentID, agentID)
		c.Next()
	}
}

func AgentID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxAgentID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func SetAgentID(c *gin.Context, agentID string) {
	c.Set(ctxAgentID, agentID)
}
