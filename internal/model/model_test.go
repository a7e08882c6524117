package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationToggled(t *testing.T) {
	assert.Equal(t, LocationBeingWorn, LocationWardrobe.Toggled())
	assert.Equal(t, LocationWardrobe, LocationBeingWorn.Toggled())
	// Anything that is not the wardrobe goes back to it.
	assert.Equal(t, LocationWardrobe, Location("").Toggled())
	assert.False(t, Location("garage").Valid())
}

func TestWearHistoryScanValue(t *testing.T) {
	when := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	history := WearHistory{{Date: when, Location: LocationBeingWorn}}

	value, err := history.Value()
	require.NoError(t, err)

	var decoded WearHistory
	require.NoError(t, decoded.Scan(value))
	require.Len(t, decoded, 1)
	assert.True(t, when.Equal(decoded[0].Date))
	assert.Equal(t, LocationBeingWorn, decoded[0].Location)

	require.NoError(t, decoded.Scan([]byte(`[]`)))
	assert.Empty(t, decoded)

	require.NoError(t, decoded.Scan(nil))
	assert.Nil(t, decoded)

	assert.Error(t, decoded.Scan(42))
}

func TestWearHistoryNilValue(t *testing.T) {
	var history WearHistory
	value, err := history.Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}
