package rfid

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/store"
)

const apiKeyBytes = 32

type APIKeyResult struct {
	APIKey     string `json:"apiKey"`
	DeviceName string `json:"deviceName"`
}

type HeartbeatResult struct {
	Status           string `json:"status"`
	NextScanInterval int    `json:"nextScanInterval"`
}

type DeviceSummary struct {
	ID            uint       `json:"id"`
	Name          string     `json:"name"`
	IsOnline      bool       `json:"isOnline"`
	LastHeartbeat *time.Time `json:"lastHeartbeat"`
}

type DeviceStatus struct {
	HasDevice bool           `json:"hasDevice"`
	Device    *DeviceSummary `json:"device,omitempty"`
}

func newAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateAPIKey issues a fresh key for the user's device. A user owns at most
// one device: a second call rotates the key and renames the existing record.
func (s *Service) GenerateAPIKey(ctx context.Context, userID uint, deviceName string) (*APIKeyResult, error) {
	name := strings.TrimSpace(deviceName)
	if name == "" {
		return nil, apperr.Validation("deviceName is required")
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "could not generate api key")
	}

	device, err := s.store.FindDeviceByUser(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		device = &model.Device{UserID: userID}
	case err != nil:
		return nil, err
	}
	device.APIKey = key
	device.DeviceName = name

	if err := s.store.SaveDevice(ctx, device); err != nil {
		return nil, err
	}
	if err := s.store.MarkUserHasDevice(ctx, userID); err != nil {
		return nil, err
	}

	s.log.Zerolog(ctx).Info().
		Uint("user_id", userID).
		Uint("device_id", device.ID).
		Msg("issued device api key")
	return &APIKeyResult{APIKey: key, DeviceName: name}, nil
}

// ValidateAPIKey resolves the device holding apiKey.
func (s *Service) ValidateAPIKey(ctx context.Context, apiKey string) (*model.Device, error) {
	if apiKey == "" {
		return nil, apperr.Unauthorized("Invalid API key")
	}
	device, err := s.store.FindDeviceByAPIKey(ctx, apiKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid API key")
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

func (s *Service) Heartbeat(ctx context.Context, apiKey string) (*HeartbeatResult, error) {
	device, err := s.ValidateAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	now := s.now()
	device.LastHeartbeat = &now
	device.IsOnline = true
	if err := s.store.SaveDevice(ctx, device); err != nil {
		return nil, err
	}
	return &HeartbeatResult{Status: "ok", NextScanInterval: s.cfg.HeartbeatIntervalMS}, nil
}

func (s *Service) DeviceStatus(ctx context.Context, userID uint) (*DeviceStatus, error) {
	device, err := s.store.FindDeviceByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &DeviceStatus{HasDevice: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &DeviceStatus{
		HasDevice: true,
		Device: &DeviceSummary{
			ID:            device.ID,
			Name:          device.DeviceName,
			IsOnline:      device.IsOnline,
			LastHeartbeat: device.LastHeartbeat,
		},
	}, nil
}
