package model

import "time"

const TagStatusDetected = "detected"

// Tag is one physical RFID sticker. TagID is unique per owning user only,
// so the same physical id can be re-registered under a different user.
type Tag struct {
	ID             uint     `gorm:"primaryKey"`
	TagID          string   `gorm:"size:100;not null;uniqueIndex:idx_tags_tag_user"`
	UserID         uint     `gorm:"not null;uniqueIndex:idx_tags_tag_user;index"`
	Status         string   `gorm:"size:32;not null;default:detected"`
	Location       Location `gorm:"size:16;not null;default:wardrobe"`
	LastDetected   *time.Time
	LastSeen       *time.Time
	SignalStrength int   `gorm:"not null;default:0"`
	IsActive       bool  `gorm:"not null;default:true"`
	ItemID         *uint `gorm:"uniqueIndex"`
	DeviceID       *uint `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Associations
	Item *Item `gorm:"foreignKey:ItemID;constraint:OnDelete:SET NULL"`
}
