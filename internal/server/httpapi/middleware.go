package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/civilforms/internal/common"
	"github.com/dmitrijs2005/civilforms/internal/logging"
	"github.com/dmitrijs2005/civilforms/internal/server/auth"
)

const sessionIDKey = "session_id"

// RequestLogger logs one line per request.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// SessionAuth requires a valid upload session token in the session header
// and stores the session id in the gin context.
func SessionAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := c.GetHeader(common.SessionTokenHeaderName)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing upload session"})
			return
		}
		id, err := auth.SessionFromToken(tok, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
			return
		}
		c.Set(sessionIDKey, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
