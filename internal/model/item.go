package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Item is the wardrobe item record. The RFID core only touches the location
// mirror (Location, LastLocationUpdate, WearCount, LastWorn, WearHistory) and
// the RFIDTagID back-pointer.
type Item struct {
	ID                 uint     `gorm:"primaryKey"`
	UserID             uint     `gorm:"not null;index"`
	Name               string   `gorm:"size:100;not null"`
	Category           string   `gorm:"size:32;not null"`
	Location           Location `gorm:"size:16;not null;default:wardrobe"`
	WearCount          int      `gorm:"not null;default:0"`
	LastWorn           *time.Time
	WearHistory        WearHistory `gorm:"type:text"`
	LastLocationUpdate *time.Time
	RFIDTagID          *uint `gorm:"column:rfid_tag_id"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// WearEvent is one entry of an item's wear history.
type WearEvent struct {
	Date     time.Time `json:"date"`
	Location Location  `json:"location"`
}

// WearHistory is stored as a JSON array.
type WearHistory []WearEvent

func (h WearHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	raw, err := json.Marshal([]WearEvent(h))
	if err != nil {
		return nil, fmt.Errorf("wear history: %w", err)
	}
	return string(raw), nil
}

func (h *WearHistory) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("wear history: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*h = nil
		return nil
	}
	var events []WearEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return fmt.Errorf("wear history: %w", err)
	}
	*h = events
	return nil
}
