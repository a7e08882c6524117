package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by the cache backends that hold remote state.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GetHealth reports whether the database and, when configured, the cache
// backend are reachable.
func (h *Handler) GetHealth(cache Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok"}
		healthy := true

		sqlDB, err := h.store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		}

		if cache != nil {
			checks["cache"] = "ok"
			if err := cache.Ping(ctx); err != nil {
				checks["cache"] = err.Error()
				healthy = false
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
	}
}
