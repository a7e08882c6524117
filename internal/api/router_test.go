package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/db"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/mw"
	"wardrobe-backend/internal/rfid"
	"wardrobe-backend/internal/scancache"
	"wardrobe-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	cfg    *config.Config
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gdb := db.NewTestDB(t)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: "memory"},
		Auth:     config.AuthConfig{JWTSecret: "router-secret"},
		Server: config.ServerConfig{
			RateLimitPerSec:       1000,
			RateLimitBurst:        1000,
			DeviceRateLimitPerSec: 1000,
			DeviceRateLimitBurst:  1000,
		},
	}
	cfg.ApplyDefaults()

	reg := prometheus.NewRegistry()
	st := store.NewGormStore(gdb)
	svc := rfid.NewService(st, scancache.NewMemory(), logger.Nop(), cfg.RFID,
		rfid.WithMetrics(metrics.NewRFIDMetrics(reg)))

	router := NewRouter(Deps{
		Config:   cfg,
		Store:    st,
		RFID:     svc,
		Webpush:  &webpush.Options{VAPIDPublicKey: "BPublicKey"},
		Logger:   logger.Nop(),
		Gatherer: reg,
	})
	return &testServer{t: t, db: gdb, cfg: cfg, router: router}
}

func (s *testServer) user(email, tier string) *model.User {
	s.t.Helper()
	u := &model.User{Email: email, SubscriptionTier: tier}
	require.NoError(s.t, s.db.Create(u).Error)
	return u
}

func (s *testServer) token(userID uint) string {
	s.t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Auth.JWTSecret))
	require.NoError(s.t, err)
	return signed
}

type request struct {
	method, path string
	token        string
	apiKey       string
	body         any
	rawBody      string
}

func (s *testServer) do(r request) *httptest.ResponseRecorder {
	s.t.Helper()
	var body *bytes.Buffer
	switch {
	case r.rawBody != "":
		body = bytes.NewBufferString(r.rawBody)
	case r.body != nil:
		raw, err := json.Marshal(r.body)
		require.NoError(s.t, err)
		body = bytes.NewBuffer(raw)
	default:
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.apiKey != "" {
		req.Header.Set(mw.APIKeyHeader, r.apiKey)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestScanEndpointNeverFailsTransport(t *testing.T) {
	s := newTestServer(t)

	w := s.do(request{method: http.MethodPost, path: "/rfid/scan", apiKey: "bogus", body: gin.H{"detectedTags": []gin.H{{"tagId": "E1"}}}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Scan processing failed","error":"Invalid API key"}`, w.Body.String())

	w = s.do(request{method: http.MethodPost, path: "/rfid/scan", rawBody: `{"detectedTags": [`})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Scan processing failed", decode[rfid.ScanResult](t, w).Message)
}

func TestScanEndpointInvalidPayload(t *testing.T) {
	s := newTestServer(t)
	u := s.user("ana@example.com", model.TierFree)
	require.NoError(t, s.db.Create(&model.Device{UserID: u.ID, APIKey: "dev-key", DeviceName: "Closet"}).Error)

	w := s.do(request{method: http.MethodPost, path: "/rfid/scan", apiKey: "dev-key", rawBody: `{"tags":[]}`})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Invalid scan data"}`, w.Body.String())
}

func TestHeartbeatEndpoint(t *testing.T) {
	s := newTestServer(t)
	u := s.user("ana@example.com", model.TierFree)
	require.NoError(t, s.db.Create(&model.Device{UserID: u.ID, APIKey: "dev-key", DeviceName: "Closet"}).Error)

	w := s.do(request{method: http.MethodPost, path: "/rfid/heartbeat", apiKey: "dev-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","nextScanInterval":5000}`, w.Body.String())

	w = s.do(request{method: http.MethodPost, path: "/rfid/heartbeat"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperr.CodeUnauthorized, decode[mw.ErrorBody](t, w).Error.Code)
}

func TestUserEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t)
	for _, r := range []request{
		{method: http.MethodGet, path: "/rfid/scan"},
		{method: http.MethodPost, path: "/rfid/scan/clear"},
		{method: http.MethodPost, path: "/rfid/association-mode", body: gin.H{"active": true}},
		{method: http.MethodPost, path: "/rfid/tags/E1/associate", body: gin.H{"itemId": 1}},
		{method: http.MethodGet, path: "/rfid/devices"},
		{method: http.MethodGet, path: "/rfid/tags"},
		{method: http.MethodPut, path: "/push/subscriptions"},
	} {
		w := s.do(r)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", r.method, r.path)
	}
}

func TestTrialUsersAreBlockedFromDeviceSetup(t *testing.T) {
	s := newTestServer(t)
	u := s.user("trial@example.com", model.TierTrial)
	tok := s.token(u.ID)

	for _, r := range []request{
		{method: http.MethodPost, path: "/rfid/device/generate-key", token: tok, body: gin.H{"deviceName": "Closet"}},
		{method: http.MethodGet, path: "/rfid/devices", token: tok},
		{method: http.MethodGet, path: "/rfid/tags", token: tok},
	} {
		w := s.do(r)
		require.Equal(t, http.StatusForbidden, w.Code, r.path)
		assert.Equal(t, apperr.CodeTrialBlocked, decode[mw.ErrorBody](t, w).Error.Code)
	}

	// Polling is not guarded.
	w := s.do(request{method: http.MethodGet, path: "/rfid/scan", token: tok})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{}`, w.Body.String())
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	u := s.user("ana@example.com", model.TierFree)
	tok := s.token(u.ID)

	cases := []request{
		{method: http.MethodPost, path: "/rfid/association-mode", token: tok, body: gin.H{}},
		{method: http.MethodPost, path: "/rfid/tags/E1/associate", token: tok, body: gin.H{"forceOverride": true}},
		{method: http.MethodPost, path: "/rfid/tags/%20/associate", token: tok, body: gin.H{"itemId": 1}},
		{method: http.MethodPost, path: "/rfid/device/generate-key", token: tok, body: gin.H{}},
		{method: http.MethodPut, path: "/push/subscriptions", token: tok, body: gin.H{"endpoint": "not a url", "p256dh": "k", "auth": "a"}},
	}
	for _, r := range cases {
		w := s.do(r)
		require.Equal(t, http.StatusBadRequest, w.Code, "%s %s: %s", r.method, r.path, w.Body.String())
		assert.Equal(t, apperr.CodeValidation, decode[mw.ErrorBody](t, w).Error.Code)
	}
}

func TestAssociateMissingItemIsNotFound(t *testing.T) {
	s := newTestServer(t)
	u := s.user("ana@example.com", model.TierFree)

	w := s.do(request{method: http.MethodPost, path: "/rfid/tags/E1/associate", token: s.token(u.ID), body: gin.H{"itemId": 77}})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperr.CodeNotFound, decode[mw.ErrorBody](t, w).Error.Code)
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	s := newTestServer(t)
	u := s.user("ana@example.com", model.TierFree)
	tok := s.token(u.ID)
	endpoint := "https://push.example.com/abc"

	w := s.do(request{method: http.MethodPut, path: "/push/subscriptions", token: tok, body: gin.H{"endpoint": endpoint, "p256dh": "k", "auth": "a"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(request{method: http.MethodGet, path: "/push/subscriptions", token: tok})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"endpoints":["https://push.example.com/abc"]}`, w.Body.String())

	w = s.do(request{method: http.MethodDelete, path: "/push/subscriptions", token: tok, body: gin.H{"endpoint": endpoint}})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/push/subscriptions", token: tok})
	assert.JSONEq(t, `{"endpoints":[]}`, w.Body.String())
}

func TestVAPIDPublicKey(t *testing.T) {
	s := newTestServer(t)
	w := s.do(request{method: http.MethodGet, path: "/push/vapid_public_key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"publicKey":"BPublicKey"}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(request{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"healthy":true,"checks":{"database":"ok"}}`, w.Body.String())

	s.do(request{method: http.MethodPost, path: "/rfid/scan", apiKey: "bogus", body: gin.H{"detectedTags": []gin.H{}}})
	w = s.do(request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `rfid_scan_batches_total{result="unauthorized"} 1`)
}
