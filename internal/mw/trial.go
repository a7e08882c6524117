package mw

import (
	"errors"

	"github.com/gin-gonic/gin"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/store"
)

const trialBlockedMessage = "Device setup not available during trial. Upgrade to access RFID features."

// TrialGuard blocks users on the trial tier. It must run after Auth.
func TrialGuard(st store.Store, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			AbortWithError(c, log, apperr.Unauthorized("missing credentials"))
			return
		}

		user, err := st.FindUser(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			AbortWithError(c, log, apperr.Unauthorized("unknown user"))
			return
		}
		if err != nil {
			AbortWithError(c, log, err)
			return
		}

		if user.SubscriptionTier == model.TierTrial {
			AbortWithError(c, log, apperr.New(apperr.CodeTrialBlocked, trialBlockedMessage))
			return
		}
		c.Next()
	}
}
