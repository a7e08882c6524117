package mw

import "github.com/gin-gonic/gin"

const ctxUserID = "user_id"

// UserID returns the authenticated user set by Auth.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// SetUserID is used by Auth and by tests that bypass token parsing.
func SetUserID(c *gin.Context, userID uint) {
	c.Set(ctxUserID, userID)
}

// APIKeyHeader carries the device credential.
const APIKeyHeader = "x-api-key"

// APIKey returns the raw device credential of the request.
func APIKey(c *gin.Context) string {
	return c.GetHeader(APIKeyHeader)
}
