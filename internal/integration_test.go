package internal

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

	"wardrobe-backend/config"
	"wardrobe-backend/internal/api"
	"wardrobe-backend/internal/db"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/notification"
	"wardrobe-backend/internal/rfid"
	"wardrobe-backend/internal/scancache"
	"wardrobe-backend/internal/store"
)

// TestWardrobeLifecycle drives one user's reader from key issuance through
// scanning, pairing, wearing and re-pairing, then hands the tag to a second
// user, checking the database after each step.
func TestWardrobeLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---
	testDB := db.NewTestDB(t)
	st := store.NewGormStore(testDB)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: "memory"},
		Auth:     config.AuthConfig{JWTSecret: "integration-secret"},
		Server: config.ServerConfig{
			RateLimitPerSec: 1000, RateLimitBurst: 1000,
			DeviceRateLimitPerSec: 1000, DeviceRateLimitBurst: 1000,
		},
	}
	cfg.ApplyDefaults()

	reg := prometheus.NewRegistry()
	// Workers are not started: queued jobs stay observable on the channel.
	pool := notification.NewWorkerPool(1, 16, st, &webpush.Options{}, logger.Nop(), metrics.NewPushMetrics(reg))
	svc := rfid.NewService(st, scancache.NewMemory(), logger.Nop(), cfg.RFID,
		rfid.WithMetrics(metrics.NewRFIDMetrics(reg)),
		rfid.WithNotifier(pool))
	router := api.NewRouter(api.Deps{Config: cfg, Store: st, RFID: svc, Logger: logger.Nop(), Gatherer: reg})

	ana := &model.User{Email: "ana@example.com", SubscriptionTier: model.TierFree}
	ben := &model.User{Email: "ben@example.com", SubscriptionTier: model.TierFree}
	require.NoError(t, testDB.Create(ana).Error)
	require.NoError(t, testDB.Create(ben).Error)

	token := func(userID uint) string {
		claims := jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.JWTSecret))
		require.NoError(t, err)
		return signed
	}

	call := func(method, path, bearer, apiKey string, body any) (int, map[string]any) {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		if apiKey != "" {
			req.Header.Set("x-api-key", apiKey)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var out map[string]any
		if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		}
		return w.Code, out
	}
	scan := func(apiKey string, tagIDs ...string) map[string]any {
		t.Helper()
		tags := make([]map[string]string, len(tagIDs))
		for i, id := range tagIDs {
			tags[i] = map[string]string{"tagId": id}
		}
		code, out := call(http.MethodPost, "/rfid/scan", "", apiKey, map[string]any{"detectedTags": tags})
		require.Equal(t, http.StatusOK, code)
		return out
	}
	loadTag := func(tagID string) model.Tag {
		t.Helper()
		var tag model.Tag
		require.NoError(t, testDB.Where("tag_id = ?", tagID).First(&tag).Error)
		return tag
	}
	loadItem := func(id uint) model.Item {
		t.Helper()
		var it model.Item
		require.NoError(t, testDB.First(&it, id).Error)
		return it
	}

	anaToken := token(ana.ID)

	// --- Step 1: Ana registers a reader. ---
	code, out := call(http.MethodPost, "/rfid/device/generate-key", anaToken, "", map[string]string{"deviceName": "Bedroom closet"})
	require.Equal(t, http.StatusOK, code)
	anaKey := out["apiKey"].(string)
	assert.Len(t, anaKey, 64)

	code, out = call(http.MethodPost, "/rfid/heartbeat", "", anaKey, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5000), out["nextScanInterval"])

	code, out = call(http.MethodGet, "/rfid/devices", anaToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["hasDevice"])
	assert.Equal(t, true, out["device"].(map[string]any)["isOnline"])

	// --- Step 2: an unknown tag is scanned and reported once to the poller. ---
	out = scan(anaKey, " E2-0001 ")
	assert.Equal(t, "Scan processed", out["message"])

	code, out = call(http.MethodGet, "/rfid/scan", anaToken, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "E2-0001", out["tagId"])
	_, out = call(http.MethodGet, "/rfid/scan", anaToken, "", nil)
	assert.Empty(t, out, "the latest scan is one-shot")

	tag := loadTag("E2-0001")
	assert.Equal(t, ana.ID, tag.UserID)
	assert.Equal(t, model.LocationWardrobe, tag.Location)
	assert.Nil(t, tag.ItemID)

	// --- Step 3: pair the tag with a shirt while in association mode. ---
	shirt := model.Item{UserID: ana.ID, Name: "Linen shirt", Category: "tops", Location: model.LocationWardrobe}
	require.NoError(t, testDB.Create(&shirt).Error)

	code, _ = call(http.MethodPost, "/rfid/association-mode", anaToken, "", map[string]bool{"active": true})
	require.Equal(t, http.StatusOK, code)
	scan(anaKey, "E2-0001")
	code, out = call(http.MethodPost, "/rfid/tags/E2-0001/associate", anaToken, "", map[string]any{"itemId": shirt.ID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	code, _ = call(http.MethodPost, "/rfid/association-mode", anaToken, "", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, code)

	tag = loadTag("E2-0001")
	require.NotNil(t, tag.ItemID)
	assert.Equal(t, shirt.ID, *tag.ItemID)
	assert.Equal(t, tag.ID, *loadItem(shirt.ID).RFIDTagID)

	// --- Step 4: wearing and returning the shirt. ---
	scan(anaKey, "E2-0001")
	worn := loadItem(shirt.ID)
	assert.Equal(t, model.LocationBeingWorn, worn.Location)
	assert.Equal(t, 1, worn.WearCount)

	select {
	case job := <-pool.Jobs():
		assert.Equal(t, notification.Job{UserID: ana.ID, ItemID: shirt.ID, Location: model.LocationBeingWorn}, job)
	default:
		t.Fatal("expected a notification job for the worn shirt")
	}

	scan(anaKey, "E2-0001")
	back := loadItem(shirt.ID)
	assert.Equal(t, model.LocationWardrobe, back.Location)
	assert.Equal(t, 1, back.WearCount)
	<-pool.Jobs()

	// --- Step 5: re-pairing the tag to a jacket. ---
	jacket := model.Item{UserID: ana.ID, Name: "Rain jacket", Category: "outerwear", Location: model.LocationWardrobe}
	require.NoError(t, testDB.Create(&jacket).Error)

	code, out = call(http.MethodPost, "/rfid/tags/E2-0001/associate", anaToken, "", map[string]any{"itemId": jacket.ID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, true, out["conflict"])
	assert.Equal(t, `Tag is already associated with "Linen shirt"`, out["message"])
	assert.Equal(t, "Linen shirt", out["existingItem"].(map[string]any)["name"])

	code, out = call(http.MethodPost, "/rfid/tags/E2-0001/associate", anaToken, "", map[string]any{"itemId": jacket.ID, "forceOverride": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	var remaining int64
	require.NoError(t, testDB.Model(&model.Item{}).Where("id = ?", shirt.ID).Count(&remaining).Error)
	assert.Zero(t, remaining, "the overridden item is deleted")

	req := httptest.NewRequest(http.MethodGet, "/rfid/tags", nil)
	req.Header.Set("Authorization", "Bearer "+anaToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []rfid.TagSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Item)
	assert.Equal(t, "Rain jacket", listed[0].Item.Name)

	// --- Step 6: the tag moves into Ben's wardrobe. ---
	code, out = call(http.MethodPost, "/rfid/device/generate-key", token(ben.ID), "", map[string]string{"deviceName": "Hall"})
	require.Equal(t, http.StatusOK, code)
	benKey := out["apiKey"].(string)

	scan(benKey, "E2-0001")
	tag = loadTag("E2-0001")
	assert.Equal(t, ben.ID, tag.UserID)
	assert.Nil(t, tag.ItemID)
	assert.Equal(t, model.LocationWardrobe, tag.Location)
	assert.Nil(t, loadItem(jacket.ID).RFIDTagID, "ana's jacket no longer points at the moved tag")

	code, out = call(http.MethodGet, "/rfid/scan", token(ben.ID), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "E2-0001", out["tagId"])
}
