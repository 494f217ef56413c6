package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const redacted = "***REDACTED***"

// sensitiveFields are redacted from logged bodies
var sensitiveFields = map[string]bool{
	"password":    true,
	"accessToken": true,
	"token":       true,
	"secret":      true,
}

// AuthAPILogging logs one auth event per request under prefix: the endpoint,
// the outcome and the redacted request body. Rejections are logged at info,
// everything else at debug.
func AuthAPILogging(logger *slog.Logger, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, prefix) {
			c.Next()
			return
		}

		start := time.Now()
		body := peekJSONBody(c.Request)

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			level = slog.LevelInfo
		}
		if !logger.Enabled(c.Request.Context(), level) {
			return
		}

		attrs := []slog.Attr{
			slog.String("request_id", c.GetString(RequestIDKey)),
			slog.String("event", path.Base(c.Request.URL.Path)),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("session_cookie_set", setsCookie(c.Writer.Header(), SessionCookie)),
		}
		if body != nil {
			attrs = append(attrs, slog.Any("request_body", redact(body)))
		}
		if userID, ok := GetUserID(c); ok {
			attrs = append(attrs, slog.String("user_id", userID))
		} else if _, userID, ok := GetSessionUser(c); ok {
			attrs = append(attrs, slog.String("user_id", userID))
		}

		msg := "Auth request"
		if level == slog.LevelInfo {
			msg = "Auth request rejected"
		}
		logger.LogAttrs(c.Request.Context(), level, msg, attrs...)
	}
}

// peekJSONBody decodes a JSON object body and leaves the body readable for
// handlers. Anything else yields nil.
func peekJSONBody(r *http.Request) map[string]any {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	raw, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}

func setsCookie(h http.Header, name string) bool {
	for _, v := range h.Values("Set-Cookie") {
		if strings.HasPrefix(v, name+"=") {
			return true
		}
	}
	return false
}

// redact returns a copy of body with sensitive fields masked
func redact(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if sensitiveFields[k] {
			v = redacted
		}
		out[k] = v
	}
	return out
}
