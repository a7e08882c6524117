package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wardrobe-backend/internal/model"
)

// ErrNotFound is returned by every lookup that matches no row.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	FindUser(ctx context.Context, userID uint) (*model.User, error)
	MarkUserHasDevice(ctx context.Context, userID uint) error

	FindDeviceByAPIKey(ctx context.Context, apiKey string) (*model.Device, error)
	FindDeviceByUser(ctx context.Context, userID uint) (*model.Device, error)
	SaveDevice(ctx context.Context, device *model.Device) error
	TouchDeviceScan(ctx context.Context, deviceID uint, at time.Time) error
	MarkStaleDevicesOffline(ctx context.Context, cutoff time.Time) (int64, error)

	FindUserTag(ctx context.Context, userID uint, tagID string) (*model.Tag, error)
	FindAnyTag(ctx context.Context, tagID string) (*model.Tag, error)
	SaveTag(ctx context.Context, tag *model.Tag) error
	ListUserTags(ctx context.Context, userID uint) ([]model.Tag, error)

	FindUserItem(ctx context.Context, userID, itemID uint) (*model.Item, error)
	SaveItem(ctx context.Context, item *model.Item) error

	UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, userID uint, endpoint string) error
	ListPushSubscriptions(ctx context.Context, userID uint) ([]model.PushSubscription, error)

	// Transaction runs fn in a single database transaction. Any error returned
	// by fn rolls back every write made through the Tx.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the unit of work handed to Transaction callbacks. Every read takes a
// row-level write lock (SELECT ... FOR UPDATE) held until commit or rollback.
type Tx interface {
	LockUserItem(userID, itemID uint) (*model.Item, error)
	LockUserTag(userID uint, tagID string) (*model.Tag, error)
	LockTagByID(id uint) (*model.Tag, error)
	FindDeviceByUser(userID uint) (*model.Device, error)
	SaveTag(tag *model.Tag) error
	SaveItem(item *model.Item) error
	DeleteItem(item *model.Item) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

// --- users ---

func (s *gormStore) FindUser(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	if err := first(s.db.WithContext(ctx).Where("id = ?", userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) MarkUserHasDevice(ctx context.Context, userID uint) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"has_rfid_device": true, "device_setup_status": "completed"}).Error
	if err != nil {
		return fmt.Errorf("failed to flag device for user %d: %w", userID, err)
	}
	return nil
}

// --- devices ---

func (s *gormStore) FindDeviceByAPIKey(ctx context.Context, apiKey string) (*model.Device, error) {
	var device model.Device
	if err := first(s.db.WithContext(ctx).Where("api_key = ?", apiKey), &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *gormStore) FindDeviceByUser(ctx context.Context, userID uint) (*model.Device, error) {
	return findDeviceByUser(s.db.WithContext(ctx), userID)
}

func (s *gormStore) SaveDevice(ctx context.Context, device *model.Device) error {
	if err := s.db.WithContext(ctx).Save(device).Error; err != nil {
		return fmt.Errorf("failed to save device for user %d: %w", device.UserID, err)
	}
	return nil
}

func (s *gormStore) TouchDeviceScan(ctx context.Context, deviceID uint, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]any{"last_scan": at, "is_online": true}).Error
	if err != nil {
		return fmt.Errorf("failed to stamp scan on device %d: %w", deviceID, err)
	}
	return nil
}

// MarkStaleDevicesOffline flags online devices whose newest heartbeat and
// newest scan are both older than cutoff. Readers that only scan stay online.
func (s *gormStore) MarkStaleDevicesOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("is_online = ?", true).
		Where("last_heartbeat IS NULL OR last_heartbeat < ?", cutoff).
		Where("last_scan IS NULL OR last_scan < ?", cutoff).
		Update("is_online", false)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark stale devices offline: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// --- tags ---

func (s *gormStore) FindUserTag(ctx context.Context, userID uint, tagID string) (*model.Tag, error) {
	var tag model.Tag
	if err := first(s.db.WithContext(ctx).Where("tag_id = ? AND user_id = ?", tagID, userID), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *gormStore) FindAnyTag(ctx context.Context, tagID string) (*model.Tag, error) {
	var tag model.Tag
	if err := first(s.db.WithContext(ctx).Where("tag_id = ?", tagID), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (s *gormStore) SaveTag(ctx context.Context, tag *model.Tag) error {
	return saveTag(s.db.WithContext(ctx), tag)
}

func (s *gormStore) ListUserTags(ctx context.Context, userID uint) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.db.WithContext(ctx).
		Preload("Item", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name", "category")
		}).
		Where("user_id = ?", userID).
		Order("id").
		Find(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for user %d: %w", userID, err)
	}
	return tags, nil
}

// --- items ---

func (s *gormStore) FindUserItem(ctx context.Context, userID, itemID uint) (*model.Item, error) {
	var item model.Item
	if err := first(s.db.WithContext(ctx).Where("id = ? AND user_id = ?", itemID, userID), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *gormStore) SaveItem(ctx context.Context, item *model.Item) error {
	return saveItem(s.db.WithContext(ctx), item)
}

// --- push subscriptions ---

func (s *gormStore) UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, userID uint, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) ListPushSubscriptions(ctx context.Context, userID uint) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

// --- transaction ---

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) locked() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockUserItem(userID, itemID uint) (*model.Item, error) {
	var item model.Item
	if err := first(t.locked().Where("id = ? AND user_id = ?", itemID, userID), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (t *gormTx) LockUserTag(userID uint, tagID string) (*model.Tag, error) {
	var tag model.Tag
	if err := first(t.locked().Where("tag_id = ? AND user_id = ?", tagID, userID), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (t *gormTx) LockTagByID(id uint) (*model.Tag, error) {
	var tag model.Tag
	if err := first(t.locked().Where("id = ?", id), &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (t *gormTx) FindDeviceByUser(userID uint) (*model.Device, error) {
	return findDeviceByUser(t.db, userID)
}

func (t *gormTx) SaveTag(tag *model.Tag) error {
	return saveTag(t.db, tag)
}

func (t *gormTx) SaveItem(item *model.Item) error {
	return saveItem(t.db, item)
}

func (t *gormTx) DeleteItem(item *model.Item) error {
	if err := t.db.Delete(item).Error; err != nil {
		return fmt.Errorf("failed to delete item %d: %w", item.ID, err)
	}
	return nil
}

// --- helpers ---

func first(q *gorm.DB, dest any) error {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func findDeviceByUser(db *gorm.DB, userID uint) (*model.Device, error) {
	var device model.Device
	if err := first(db.Where("user_id = ?", userID), &device); err != nil {
		return nil, err
	}
	return &device, nil
}

func saveTag(db *gorm.DB, tag *model.Tag) error {
	if err := db.Omit(clause.Associations).Save(tag).Error; err != nil {
		return fmt.Errorf("failed to save tag %q: %w", tag.TagID, err)
	}
	return nil
}

func saveItem(db *gorm.DB, item *model.Item) error {
	if err := db.Save(item).Error; err != nil {
		return fmt.Errorf("failed to save item %d: %w", item.ID, err)
	}
	return nil
}
