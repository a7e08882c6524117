package rfid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/parse"
	"wardrobe-backend/internal/store"
)

const (
	msgScanProcessed = "Scan processed"
	msgScanFailed    = "Scan processing failed"
	msgInvalidScan   = "Invalid scan data"
)

// ScanResult is always returned to the reader; ProcessScan never fails at the
// transport level.
type ScanResult struct {
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	Processed int    `json:"processed,omitempty"`
	Failed    int    `json:"failed,omitempty"`
}

// sightingContext is fixed for every tag of one batch.
type sightingContext struct {
	device          *model.Device
	associationMode bool
}

// ProcessScan reconciles one poll cycle of a reader. Tags are handled in array
// order and independently: a failing tag is logged and skipped.
func (s *Service) ProcessScan(ctx context.Context, apiKey string, body []byte) ScanResult {
	start := s.now()

	device, err := s.ValidateAPIKey(ctx, apiKey)
	if err != nil {
		s.metrics.ObserveBatch(metrics.BatchUnauthorized, 0)
		msg := err.Error()
		if typed := apperr.As(err); typed != nil {
			msg = typed.Message()
		}
		s.log.Warn(ctx, "scan rejected: "+msg)
		return ScanResult{Message: msgScanFailed, Error: msg}
	}
	ctx = s.log.WithDeviceID(s.log.WithUserID(ctx, device.UserID), device.ID)

	sightings, err := parse.ScanPayload(body)
	if err != nil {
		s.metrics.ObserveBatch(metrics.BatchInvalid, 0)
		s.log.Warn(ctx, "scan payload rejected")
		return ScanResult{Message: msgInvalidScan}
	}

	assocMode, err := s.cache.InAssociationMode(ctx, device.UserID)
	if err != nil {
		s.log.Error(ctx, "reading association mode, assuming off", err)
		assocMode = false
	}
	sc := sightingContext{device: device, associationMode: assocMode}

	result := ScanResult{Message: msgScanProcessed}
	for _, sr := range sightings {
		if sr.Err != nil {
			result.Failed++
			s.metrics.IncTag(metrics.TagRejected)
			s.log.Zerolog(ctx).Warn().Err(sr.Err).Str("entry", sr.Raw).Msg("skipping malformed sighting")
			continue
		}
		outcome, err := s.reconcile(ctx, sc, sr.Sighting)
		if err != nil {
			result.Failed++
			s.metrics.IncTag(metrics.TagFailed)
			s.log.Zerolog(ctx).Error().Err(err).Str("tag_id", sr.Sighting.TagID).Msg("error processing tag")
			continue
		}
		result.Processed++
		s.metrics.IncTag(outcome)
	}

	if err := s.store.TouchDeviceScan(ctx, device.ID, s.now()); err != nil {
		s.log.Error(ctx, "stamping device scan time", err)
	}

	s.metrics.ObserveBatch(metrics.BatchProcessed, s.now().Sub(start))
	s.log.Zerolog(ctx).Debug().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Bool("association_mode", assocMode).
		Msg("scan batch processed")
	return result
}

func tagLockKey(userID uint, tagID string) string {
	return strconv.FormatUint(uint64(userID), 10) + "/" + tagID
}

// reconcile applies one sighting and then records it as the user's latest scan.
func (s *Service) reconcile(ctx context.Context, sc sightingContext, sighting parse.Sighting) (string, error) {
	userID := sc.device.UserID
	if s.cfg.SerializeTagUpdates {
		unlock := s.locks.Lock(tagLockKey(userID, sighting.TagID))
		defer unlock()
	}

	var outcome string
	tag, err := s.store.FindUserTag(ctx, userID, sighting.TagID)
	switch {
	case err == nil:
		outcome, err = s.refreshTag(ctx, sc, tag, sighting)
	case errors.Is(err, store.ErrNotFound):
		outcome, err = s.adoptTag(ctx, sc, sighting)
	default:
		err = fmt.Errorf("looking up tag: %w", err)
	}
	if err != nil {
		return metrics.TagFailed, err
	}

	if err := s.cache.SetLatestScan(ctx, userID, sighting.TagID, s.now()); err != nil {
		s.log.Zerolog(ctx).Error().Err(err).Str("tag_id", sighting.TagID).Msg("caching latest scan")
	}
	return outcome, nil
}

func stampSighting(tag *model.Tag, device *model.Device, sighting parse.Sighting, now time.Time) {
	tag.LastDetected = &now
	tag.LastSeen = &now
	tag.DeviceID = &device.ID
	if sighting.SignalStrength != nil {
		tag.SignalStrength = *sighting.SignalStrength
	}
}

// refreshTag handles a tag the scanning user already owns.
func (s *Service) refreshTag(ctx context.Context, sc sightingContext, tag *model.Tag, sighting parse.Sighting) (string, error) {
	now := s.now()
	stampSighting(tag, sc.device, sighting, now)

	outcome := metrics.TagUpdated
	switch {
	case sc.associationMode:
		tag.Location = model.LocationWardrobe
	case tag.ItemID != nil:
		tag.Location = tag.Location.Toggled()
		outcome = metrics.TagToggled
		if err := s.mirrorItemLocation(ctx, sc.device.UserID, *tag.ItemID, tag.Location, now); err != nil {
			s.log.Zerolog(ctx).Error().Err(err).
				Str("tag_id", tag.TagID).
				Uint("item_id", *tag.ItemID).
				Msg("error updating associated item")
		}
	}

	if err := s.store.SaveTag(ctx, tag); err != nil {
		return "", err
	}
	return outcome, nil
}

// mirrorItemLocation copies a toggled location onto the tagged item. Moving to
// being_worn counts as one wear.
func (s *Service) mirrorItemLocation(ctx context.Context, userID, itemID uint, location model.Location, now time.Time) error {
	item, err := s.store.FindUserItem(ctx, userID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	item.Location = location
	item.LastLocationUpdate = &now
	if location == model.LocationBeingWorn {
		item.WearCount++
		item.LastWorn = &now
		item.WearHistory = append(item.WearHistory, model.WearEvent{Date: now, Location: location})
	}
	if err := s.store.SaveItem(ctx, item); err != nil {
		return err
	}
	s.notify(userID, item.ID, location)
	return nil
}

// adoptTag handles a tag id the scanning user does not own yet: either it is
// transferred from another user or created.
func (s *Service) adoptTag(ctx context.Context, sc sightingContext, sighting parse.Sighting) (string, error) {
	existing, err := s.store.FindAnyTag(ctx, sighting.TagID)
	switch {
	case err == nil:
		if err := s.transferTag(ctx, sc, existing.ID, sighting); err != nil {
			return "", err
		}
		return metrics.TagTransferred, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("looking up tag owner: %w", err)
	}

	now := s.now()
	tag := &model.Tag{
		TagID:    sighting.TagID,
		UserID:   sc.device.UserID,
		Status:   model.TagStatusDetected,
		Location: model.LocationWardrobe,
		IsActive: true,
	}
	stampSighting(tag, sc.device, sighting, now)
	if err := s.store.SaveTag(ctx, tag); err != nil {
		return "", err
	}
	s.log.Zerolog(ctx).Info().Str("tag_id", tag.TagID).Msg("registered new tag")
	return metrics.TagCreated, nil
}

// transferTag moves a physical tag to the scanning user. Any association is
// dropped on both sides so the previous owner's item no longer points at it.
func (s *Service) transferTag(ctx context.Context, sc sightingContext, id uint, sighting parse.Sighting) error {
	return s.store.Transaction(ctx, func(tx store.Tx) error {
		tag, err := tx.LockTagByID(id)
		if err != nil {
			return err
		}
		previousOwner := tag.UserID

		if tag.ItemID != nil {
			item, err := tx.LockUserItem(previousOwner, *tag.ItemID)
			switch {
			case err == nil:
				if item.RFIDTagID != nil && *item.RFIDTagID == tag.ID {
					item.RFIDTagID = nil
					if err := tx.SaveItem(item); err != nil {
						return err
					}
				}
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		tag.UserID = sc.device.UserID
		tag.ItemID = nil
		tag.Item = nil
		tag.Location = model.LocationWardrobe
		stampSighting(tag, sc.device, sighting, s.now())
		if err := tx.SaveTag(tag); err != nil {
			return err
		}

		s.log.Zerolog(ctx).Info().
			Str("tag_id", tag.TagID).
			Uint("from_user_id", previousOwner).
			Msg("transferred tag")
		return nil
	})
}
