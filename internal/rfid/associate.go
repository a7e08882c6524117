package rfid

import (
	"context"
	"errors"
	"fmt"

	"wardrobe-backend/internal/apperr"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/parse"
	"wardrobe-backend/internal/store"
)

const msgAssociated = "Tag associated successfully"

type ItemSummary struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

func summarizeItem(item *model.Item) *ItemSummary {
	if item == nil {
		return nil
	}
	return &ItemSummary{ID: item.ID, Name: item.Name, Category: item.Category}
}

// AssociationResult is returned for both outcomes. A conflict is a normal
// result the client turns into a confirmation prompt, not an error.
type AssociationResult struct {
	Success      bool         `json:"success"`
	Conflict     bool         `json:"conflict,omitempty"`
	Message      string       `json:"message"`
	ExistingItem *ItemSummary `json:"existingItem,omitempty"`
}

func conflictResult(existing *model.Item) *AssociationResult {
	name := "Unknown Item"
	if existing != nil && existing.Name != "" {
		name = existing.Name
	}
	return &AssociationResult{
		Success:      false,
		Conflict:     true,
		Message:      fmt.Sprintf("Tag is already associated with \"%s\"", name),
		ExistingItem: summarizeItem(existing),
	}
}

// AssociateTag binds tagID to itemID for userID in one transaction, locking
// every row it reads. When the tag is bound to another item the call returns
// a conflict unless forceOverride is set, in which case the old item is
// unlinked and, unless configured otherwise, deleted.
func (s *Service) AssociateTag(ctx context.Context, userID uint, rawTagID string, itemID uint, forceOverride bool) (*AssociationResult, error) {
	tagID, err := parse.TagID(rawTagID)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	ctx = s.log.WithUserID(ctx, userID)

	var (
		result     *AssociationResult
		overridden bool
	)
	err = s.store.Transaction(ctx, func(tx store.Tx) error {
		result, overridden = nil, false

		if _, err := tx.LockUserItem(userID, itemID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("Item with ID %d not found or doesn't belong to user", itemID)
			}
			return err
		}

		tag, err := s.lockOrCreateTag(tx, userID, tagID)
		if err != nil {
			return err
		}

		if tag.ItemID != nil && *tag.ItemID != itemID {
			existing, err := tx.LockUserItem(userID, *tag.ItemID)
			if errors.Is(err, store.ErrNotFound) {
				existing = nil
			} else if err != nil {
				return err
			}

			if !forceOverride {
				result = conflictResult(existing)
				return nil
			}
			if err := s.releaseItem(ctx, tx, tag, existing); err != nil {
				return err
			}
			overridden = true
		}

		// The target may have been removed by a concurrent override since the
		// first lock was taken.
		item, err := tx.LockUserItem(userID, itemID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Target item was deleted during operation")
		}
		if err != nil {
			return err
		}

		if err := detachPreviousTag(tx, item, tag); err != nil {
			return err
		}

		tag.ItemID = &item.ID
		tag.Location = model.LocationWardrobe
		if err := tx.SaveTag(tag); err != nil {
			return err
		}
		item.RFIDTagID = &tag.ID
		item.Location = model.LocationWardrobe
		if err := tx.SaveItem(item); err != nil {
			return err
		}

		result = &AssociationResult{Success: true, Message: msgAssociated}
		return nil
	})
	if err != nil {
		s.metrics.IncAssociation(metrics.AssociationError)
		return nil, err
	}

	switch {
	case result.Conflict:
		s.metrics.IncAssociation(metrics.AssociationConflict)
	case overridden:
		s.metrics.IncAssociation(metrics.AssociationOverride)
	default:
		s.metrics.IncAssociation(metrics.AssociationSuccess)
	}
	s.log.Zerolog(ctx).Info().
		Str("tag_id", tagID).
		Uint("item_id", itemID).
		Bool("force", forceOverride).
		Bool("success", result.Success).
		Msg("tag association")
	return result, nil
}

// lockOrCreateTag returns the user's tag, creating it against the user's
// device when it has never been scanned.
func (s *Service) lockOrCreateTag(tx store.Tx, userID uint, tagID string) (*model.Tag, error) {
	tag, err := tx.LockUserTag(userID, tagID)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	device, err := tx.FindDeviceByUser(userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("No RFID device found for user")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	tag = &model.Tag{
		TagID:        tagID,
		UserID:       userID,
		DeviceID:     &device.ID,
		Status:       model.TagStatusDetected,
		Location:     model.LocationWardrobe,
		IsActive:     true,
		LastDetected: &now,
	}
	if err := tx.SaveTag(tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// releaseItem unlinks the item currently bound to tag and removes it when
// delete-on-override is enabled.
func (s *Service) releaseItem(ctx context.Context, tx store.Tx, tag *model.Tag, existing *model.Item) error {
	tag.ItemID = nil
	if err := tx.SaveTag(tag); err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	existing.RFIDTagID = nil
	if err := tx.SaveItem(existing); err != nil {
		return err
	}
	if !s.cfg.DeletesItemOnOverride() {
		s.log.Zerolog(ctx).Info().Uint("item_id", existing.ID).Msg("unlinked item during override")
		return nil
	}
	if err := tx.DeleteItem(existing); err != nil {
		return err
	}
	s.log.Zerolog(ctx).Warn().
		Uint("item_id", existing.ID).
		Str("item_name", existing.Name).
		Msg("deleted item during override")
	return nil
}

// detachPreviousTag clears the tag the target item pointed at before, so an
// item never ends up referenced by two tags.
func detachPreviousTag(tx store.Tx, item *model.Item, tag *model.Tag) error {
	if item.RFIDTagID == nil || *item.RFIDTagID == tag.ID {
		return nil
	}
	previous, err := tx.LockTagByID(*item.RFIDTagID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if previous.ItemID == nil || *previous.ItemID != item.ID {
		return nil
	}
	previous.ItemID = nil
	return tx.SaveTag(previous)
}

// DisassociateTag removes the binding between the user's tag and its item.
// Unbound tags are left untouched.
func (s *Service) DisassociateTag(ctx context.Context, userID uint, rawTagID string) error {
	tagID, err := parse.TagID(rawTagID)
	if err != nil {
		return apperr.Validation(err.Error())
	}

	return s.store.Transaction(ctx, func(tx store.Tx) error {
		tag, err := tx.LockUserTag(userID, tagID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Tag %s not found", tagID)
		}
		if err != nil {
			return err
		}
		if tag.ItemID == nil {
			return nil
		}

		item, err := tx.LockUserItem(userID, *tag.ItemID)
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

		tag.ItemID = nil
		return tx.SaveTag(tag)
	})
}
