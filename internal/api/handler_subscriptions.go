package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wardrobe-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers a browser for item location notifications.
// Re-registering an endpoint replaces its keys and owner.
func (h *Handler) PutSubscription(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req putSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		UserID:   userID,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.store.UpsertPushSubscription(c.Request.Context(), &subscription); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req deleteSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.store.DeletePushSubscription(c.Request.Context(), userID, req.Endpoint); err != nil {
		h.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetSubscriptions lists the endpoints registered by the current user.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	subs, err := h.store.ListPushSubscriptions(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	endpoints := make([]string, len(subs))
	for i, sub := range subs {
		endpoints[i] = sub.Endpoint
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}
