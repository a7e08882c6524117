package scancache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory keeps both maps in process memory; state is lost on restart.
type Memory struct {
	mu    sync.Mutex
	scans *cache.Cache
	modes *cache.Cache
}

// NewMemory creates an empty in-process cache. Entries never expire; they
// live until overwritten or explicitly cleared.
func NewMemory() *Memory {
	return &Memory{
		scans: cache.New(cache.NoExpiration, 0),
		modes: cache.New(cache.NoExpiration, 0),
	}
}

func userKey(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

func (m *Memory) SetLatestScan(_ context.Context, userID uint, tagID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans.Set(userKey(userID), Entry{TagID: tagID, Timestamp: at}, cache.NoExpiration)
	return nil
}

func (m *Memory) ConsumeLatestScan(_ context.Context, userID uint) (*LatestScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userKey(userID)
	v, found := m.scans.Get(key)
	if !found {
		return nil, nil
	}
	entry := v.(Entry)
	if entry.Consumed {
		return nil, nil
	}
	entry.Consumed = true
	m.scans.Set(key, entry, cache.NoExpiration)
	return &LatestScan{TagID: entry.TagID, Timestamp: entry.Timestamp}, nil
}

func (m *Memory) ClearLatestScan(_ context.Context, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans.Delete(userKey(userID))
	return nil
}

func (m *Memory) SetAssociationMode(_ context.Context, userID uint, active bool) error {
	if active {
		m.modes.Set(userKey(userID), true, cache.NoExpiration)
	} else {
		m.modes.Delete(userKey(userID))
	}
	return nil
}

func (m *Memory) InAssociationMode(_ context.Context, userID uint) (bool, error) {
	_, found := m.modes.Get(userKey(userID))
	return found, nil
}

// Peek returns the raw slot without consuming it.
func (m *Memory) Peek(userID uint) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, found := m.scans.Get(userKey(userID))
	if !found {
		return Entry{}, false
	}
	return v.(Entry), true
}
