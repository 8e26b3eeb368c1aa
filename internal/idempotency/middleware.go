package idempotency

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tetonam/counseling-system/internal/metrics"
)

// KeyHeader is the client-provided idempotency key header.
const KeyHeader = "Idempotency-Key"

// DefaultTTL is the default lifetime of an idempotency key (24 hours).
const DefaultTTL = 24 * time.Hour

// Config holds the configuration for the idempotency middleware.
type Config struct {
	// Store is the idempotency key store.
	Store Store
	// TTL is how long to remember processed requests.
	TTL time.Duration
	// Logger for logging duplicate requests.
	Logger zerolog.Logger
	// DeleteKeyOnError deletes the key when the request fails server-side,
	// allowing the client to retry with the same key.
	DeleteKeyOnError bool
}

// NewConfig creates a default configuration with the provided store.
func NewConfig(store Store) Config {
	return Config{
		Store:            store,
		TTL:              DefaultTTL,
		Logger:           zerolog.Nop(),
		DeleteKeyOnError: true,
	}
}

// Middleware creates a gin middleware that rejects duplicate booking
// submissions. The key is the Idempotency-Key header namespaced by the
// requester, so different users never collide. Requests without the header
// pass through; the slot lock and uniqueness check remain the correctness
// backstop either way.
func Middleware(cfg Config) gin.HandlerFunc {
	if cfg.Store == nil {
		panic("idempotency: store is required")
	}

	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(KeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if requester := c.GetHeader("X-User-Email"); requester != "" {
			key = requester + ":" + key
		}

		isNew, err := cfg.Store.CheckAndSet(c.Request.Context(), key, cfg.TTL)
		if err != nil {
			cfg.Logger.Error().
				Err(err).
				Str("idempotencyKey", key).
				Msg("failed to check idempotency key")
			// On store error, proceed rather than block legitimate traffic.
			c.Next()
			return
		}

		if !isNew {
			metrics.IdempotencyRejections.Inc()
			cfg.Logger.Info().
				Str("idempotencyKey", key).
				Str("path", c.Request.URL.Path).
				Msg("duplicate request detected")

			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":   "DUPLICATE_REQUEST",
				"message": "this request has already been processed; retry with a new Idempotency-Key",
			})
			return
		}

		c.Next()

		if cfg.DeleteKeyOnError && c.Writer.Status() >= 500 {
			if err := cfg.Store.Delete(c.Request.Context(), key); err != nil {
				cfg.Logger.Error().
					Err(err).
					Str("idempotencyKey", key).
					Msg("failed to delete idempotency key after error")
			}
		}
	}
}
