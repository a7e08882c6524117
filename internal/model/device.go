package model

import "time"

// Device represents one physical RFID reader. A user owns at most one.
type Device struct {
	ID              uint    `gorm:"primaryKey"`
	SerialNumber    *string `gorm:"size:100;uniqueIndex"`
	APIKey          string  `gorm:"column:api_key;size:100;uniqueIndex;not null"`
	DeviceName      string  `gorm:"size:100;not null"`
	UserID          uint    `gorm:"uniqueIndex;not null"`
	LastHeartbeat   *time.Time
	LastScan        *time.Time
	IsOnline        bool `gorm:"not null;default:false"`
	ScanInterval    int  `gorm:"not null;default:30"`
	PowerSavingMode bool `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
