package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	replayedHeader    = "Idempotent-Replayed"
)

// ResponseCache keeps serialized responses per idempotency key.
type ResponseCache interface {
	Lookup(ctx context.Context, key string) (data []byte, found bool, err error)
	Store(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the first response to a mutating request that
// carries an Idempotency-Key, so a retried start, reset or boarding decision
// is applied once. Keys are scoped to method and path. A nil cache disables it.
func IdempotencyMiddleware(cache ResponseCache, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		if cache == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		data, found, err := cache.Lookup(ctx, cacheKey)
		if err != nil {
			// Cache unavailable: proceed without replay protection.
			logger.Warn("idempotency lookup failed", slog.String("error", err.Error()))
			c.Next()
			return
		}
		if found {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				for k, v := range cached.Headers {
					for _, val := range v {
						c.Header(k, val)
					}
				}
				c.Header(replayedHeader, "true")
				c.Data(cached.StatusCode, "application/json", cached.Body)
				c.Abort()
				return
			}
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}
		response, err := json.Marshal(cachedResponse{
			StatusCode: status,
			Body:       w.body.Bytes(),
			Headers:    extractResponseHeaders(c),
		})
		if err != nil {
			return
		}
		if err := cache.Store(ctx, cacheKey, response, idempotencyTTL); err != nil {
			logger.Warn("idempotency store failed", slog.String("error", err.Error()))
		}
	}
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// extractResponseHeaders keeps only Content-Type.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
