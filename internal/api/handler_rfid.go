package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/mw"
)

// PostScan accepts a reader's poll cycle. It always answers 200; failures are
// reported in the body because readers cannot act on HTTP errors.
func (h *Handler) PostScan(c *gin.Context) {
	// An unreadable body degrades to "Invalid scan data" like any other bad payload.
	body, _ := c.GetRawData()
	c.JSON(http.StatusOK, h.rfid.ProcessScan(c.Request.Context(), mw.APIKey(c), body))
}

func (h *Handler) PostHeartbeat(c *gin.Context) {
	res, err := h.rfid.Heartbeat(c.Request.Context(), mw.APIKey(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetLatestScan returns the newest sighting once, then {} until the next scan.
func (h *Handler) GetLatestScan(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	scan, err := h.rfid.LatestScan(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if scan == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, scan)
}

func (h *Handler) PostClearScan(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.rfid.ClearScan(c.Request.Context(), userID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type associationModeRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *Handler) PostAssociationMode(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req associationModeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.rfid.SetAssociationMode(c.Request.Context(), userID, *req.Active); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type associateRequest struct {
	ItemID        uint `json:"itemId" binding:"required"`
	ForceOverride bool `json:"forceOverride"`
}

// PostAssociate binds the path tag to an item. Conflicts are 200 responses
// with success=false so the client can ask for confirmation.
func (h *Handler) PostAssociate(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req associateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.rfid.AssociateTag(c.Request.Context(), userID, c.Param("tagId"), req.ItemID, req.ForceOverride)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PostDisassociate(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.rfid.DisassociateTag(c.Request.Context(), userID, c.Param("tagId")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type generateKeyRequest struct {
	DeviceName string `json:"deviceName" binding:"required"`
}

func (h *Handler) PostGenerateKey(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req generateKeyRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.rfid.GenerateAPIKey(c.Request.Context(), userID, req.DeviceName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetDevices(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	status, err := h.rfid.DeviceStatus(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) GetTags(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	tags, err := h.rfid.ListTags(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, apperr.Wrap(apperr.CodeInternal, err, "could not list tags"))
		return
	}
	c.JSON(http.StatusOK, tags)
}
