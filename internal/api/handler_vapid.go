package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wardrobe-backend/internal/apperr"
)

// GetVAPIDPublicKey returns the key browsers need to subscribe to item notifications.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{
			"code":    apperr.CodeInternal,
			"message": "push notifications are not configured",
		}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"publicKey": h.webpush.VAPIDPublicKey})
}
