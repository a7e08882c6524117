package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/mw"
	"wardrobe-backend/internal/rfid"
	"wardrobe-backend/internal/store"
)

// Deps collects what the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	RFID     *rfid.Service
	Webpush  *webpush.Options
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	// Cache is pinged by /healthz when set.
	Cache Pinger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(d.Logger))

	handler := NewHandler(d.Store, d.RFID, d.Webpush, d.Logger)
	server := d.Config.Server

	userLimit := mw.RateLimiter(rate.Limit(server.RateLimitPerSec), server.RateLimitBurst)
	deviceLimit := mw.RateLimiterBy(rate.Limit(server.DeviceRateLimitPerSec), server.DeviceRateLimitBurst, mw.ByAPIKey)
	auth := mw.Auth(d.Config.Auth, d.Logger)
	trial := mw.TrialGuard(d.Store, d.Logger)

	r.GET("/healthz", handler.GetHealth(d.Cache))
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	device := r.Group("/rfid")
	device.Use(deviceLimit)
	{
		device.POST("/scan", handler.PostScan)
		device.POST("/heartbeat", handler.PostHeartbeat)
	}

	user := r.Group("/rfid")
	user.Use(userLimit, auth)
	{
		user.GET("/scan", handler.GetLatestScan)
		user.POST("/scan/clear", handler.PostClearScan)
		user.POST("/association-mode", handler.PostAssociationMode)
		user.POST("/tags/:tagId/associate", handler.PostAssociate)
		user.POST("/tags/:tagId/disassociate", handler.PostDisassociate)

		user.POST("/device/generate-key", trial, handler.PostGenerateKey)
		user.GET("/devices", trial, handler.GetDevices)
		user.GET("/tags", trial, handler.GetTags)
	}

	push := r.Group("/push")
	push.Use(userLimit)
	{
		push.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
		push.GET("/subscriptions", auth, handler.GetSubscriptions)
		push.PUT("/subscriptions", auth, handler.PutSubscription)
		push.DELETE("/subscriptions", auth, handler.DeleteSubscription)
	}

	return r
}
