package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/mw"
	"wardrobe-backend/internal/rfid"
	"wardrobe-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	rfid    *rfid.Service
	webpush *webpush.Options
	log     *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, svc *rfid.Service, webpushOptions *webpush.Options, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		store:   s,
		rfid:    svc,
		webpush: webpushOptions,
		log:     log,
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	mw.AbortWithError(c, h.log, err)
}

// currentUser returns the authenticated user or aborts with 401.
func (h *Handler) currentUser(c *gin.Context) (uint, bool) {
	id, ok := mw.UserID(c)
	if !ok {
		h.fail(c, apperr.Unauthorized("missing credentials"))
	}
	return id, ok
}

func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.Validation("invalid request: "+err.Error()))
		return false
	}
	return true
}
