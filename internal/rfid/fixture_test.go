package rfid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/db"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/scancache"
	"wardrobe-backend/internal/store"
)

type locationChange struct {
	UserID, ItemID uint
	Location       model.Location
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []locationChange
}

func (n *recordingNotifier) NotifyLocationChange(userID, itemID uint, location model.Location) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, locationChange{userID, itemID, location})
	return true
}

func (n *recordingNotifier) all() []locationChange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]locationChange(nil), n.changes...)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	store    store.Store
	cache    *scancache.Memory
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T, cfg config.RFIDConfig) *fixture {
	t.Helper()
	gdb := db.NewTestDB(t)
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       gdb,
		store:    store.NewGormStore(gdb),
		cache:    scancache.NewMemory(),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.store, f.cache, nil, cfg, WithNotifier(f.notifier))
	return f
}

// withStore rebuilds the service on top of a wrapped store.
func (f *fixture) withStore(st store.Store, cfg config.RFIDConfig) {
	f.svc = NewService(st, f.cache, nil, cfg, WithNotifier(f.notifier))
}

func (f *fixture) user(email string) *model.User {
	f.t.Helper()
	u := &model.User{Email: email, SubscriptionTier: model.TierFree}
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *fixture) device(userID uint, apiKey string) *model.Device {
	f.t.Helper()
	d := &model.Device{UserID: userID, APIKey: apiKey, DeviceName: "Closet reader"}
	require.NoError(f.t, f.db.Create(d).Error)
	return d
}

func (f *fixture) item(userID uint, name string) *model.Item {
	f.t.Helper()
	it := &model.Item{UserID: userID, Name: name, Category: "tops", Location: model.LocationWardrobe}
	require.NoError(f.t, f.db.Create(it).Error)
	return it
}

// bind links tag and item directly in the database.
func (f *fixture) bind(userID uint, tagID string, item *model.Item, location model.Location) *model.Tag {
	f.t.Helper()
	tag := &model.Tag{
		TagID:    tagID,
		UserID:   userID,
		Status:   model.TagStatusDetected,
		Location: location,
		IsActive: true,
		ItemID:   &item.ID,
	}
	require.NoError(f.t, f.db.Omit("Item").Create(tag).Error)
	require.NoError(f.t, f.db.Model(item).Update("rfid_tag_id", tag.ID).Error)
	item.RFIDTagID = &tag.ID
	return tag
}

func scanBody(tagIDs ...string) []byte {
	entries := make([]map[string]any, 0, len(tagIDs))
	for _, id := range tagIDs {
		entries = append(entries, map[string]any{"tagId": id})
	}
	raw, _ := json.Marshal(map[string]any{"detectedTags": entries})
	return raw
}

func (f *fixture) scan(apiKey string, tagIDs ...string) ScanResult {
	return f.svc.ProcessScan(f.ctx, apiKey, scanBody(tagIDs...))
}

func (f *fixture) tag(userID uint, tagID string) *model.Tag {
	f.t.Helper()
	tag, err := f.store.FindUserTag(f.ctx, userID, tagID)
	require.NoError(f.t, err)
	return tag
}

func (f *fixture) reloadItem(id uint) *model.Item {
	f.t.Helper()
	var it model.Item
	require.NoError(f.t, f.db.First(&it, id).Error)
	return &it
}

func (f *fixture) itemExists(id uint) bool {
	var n int64
	require.NoError(f.t, f.db.Model(&model.Item{}).Where("id = ?", id).Count(&n).Error)
	return n > 0
}

// assertBindingsConsistent checks that tag.item_id and item.rfid_tag_id
// always point at each other.
func (f *fixture) assertBindingsConsistent() {
	f.t.Helper()
	var tags []model.Tag
	require.NoError(f.t, f.db.Find(&tags).Error)
	for _, tag := range tags {
		if tag.ItemID == nil {
			continue
		}
		var it model.Item
		require.NoError(f.t, f.db.First(&it, *tag.ItemID).Error, "tag %s points at missing item", tag.TagID)
		require.NotNil(f.t, it.RFIDTagID, "item %d does not point back at tag %s", it.ID, tag.TagID)
		assert.Equal(f.t, tag.ID, *it.RFIDTagID, fmt.Sprintf("item %d back-pointer", it.ID))
	}

	var items []model.Item
	require.NoError(f.t, f.db.Find(&items).Error)
	for _, it := range items {
		if it.RFIDTagID == nil {
			continue
		}
		var tag model.Tag
		require.NoError(f.t, f.db.First(&tag, *it.RFIDTagID).Error, "item %d points at missing tag", it.ID)
		require.NotNil(f.t, tag.ItemID, "tag %s does not point back at item %d", tag.TagID, it.ID)
		assert.Equal(f.t, it.ID, *tag.ItemID, fmt.Sprintf("tag %s back-pointer", tag.TagID))
	}
}
