package model

import "time"

const (
	TierFree  = "free"
	TierTrial = "trial"
)

// User is the subset of the account record the RFID core reads.
type User struct {
	ID                uint   `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex;size:100;not null"`
	FirstName         string `gorm:"size:50"`
	LastName          string `gorm:"size:50"`
	SubscriptionTier  string `gorm:"size:16;not null;default:free"`
	TrialExpires      *time.Time
	HasRFIDDevice     bool   `gorm:"column:has_rfid_device;not null;default:false"`
	DeviceSetupStatus string `gorm:"size:20;not null;default:none"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
