package rfid

import (
	"context"
	"time"

	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/scancache"
)

type TagSummary struct {
	ID           uint           `json:"id"`
	TagID        string         `json:"tagId"`
	Location     model.Location `json:"location"`
	LastDetected *time.Time     `json:"lastDetected"`
	Item         *ItemSummary   `json:"item"`
}

// ListTags returns the user's tags with the bound item, if any.
func (s *Service) ListTags(ctx context.Context, userID uint) ([]TagSummary, error) {
	tags, err := s.store.ListUserTags(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]TagSummary, 0, len(tags))
	for i := range tags {
		t := &tags[i]
		out = append(out, TagSummary{
			ID:           t.ID,
			TagID:        t.TagID,
			Location:     t.Location,
			LastDetected: t.LastDetected,
			Item:         summarizeItem(t.Item),
		})
	}
	return out, nil
}

// LatestScan returns the newest sighting once; nil means nothing new since
// the last call.
func (s *Service) LatestScan(ctx context.Context, userID uint) (*scancache.LatestScan, error) {
	return s.cache.ConsumeLatestScan(ctx, userID)
}

func (s *Service) ClearScan(ctx context.Context, userID uint) error {
	return s.cache.ClearLatestScan(ctx, userID)
}

// SetAssociationMode toggles pairing mode. While it is on, scans of the
// user's tags reset them to the wardrobe instead of toggling.
func (s *Service) SetAssociationMode(ctx context.Context, userID uint, active bool) error {
	if err := s.cache.SetAssociationMode(ctx, userID, active); err != nil {
		return err
	}
	s.log.Zerolog(ctx).Info().Uint("user_id", userID).Bool("active", active).Msg("association mode changed")
	return nil
}
