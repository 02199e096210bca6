package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeProvider(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		wantErr  bool
	}{
		{name: "local timezone", timezone: "Local"},
		{name: "empty means local", timezone: ""},
		{name: "UTC timezone", timezone: "UTC"},
		{name: "named timezone", timezone: "Europe/Brussels"},
		{name: "invalid timezone", timezone: "Mars/Olympus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, err := NewTimeProvider(tt.timezone)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid timezone")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, tp.Location())
		})
	}
}

func TestTimeProviderPinnedClock(t *testing.T) {
	tp, err := NewTimeProvider("UTC")
	require.NoError(t, err)

	fixed := time.Date(2024, 3, 9, 23, 59, 58, 0, time.UTC)
	tp.SetNowFunc(func() time.Time { return fixed })

	assert.Equal(t, fixed, tp.Now())
	y, m, d := tp.Today()
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.March, m)
	assert.Equal(t, 9, d)

	tp.SetNowFunc(nil)
	assert.WithinDuration(t, time.Now(), tp.Now(), time.Minute)
}

func TestTimeProviderFormatUsesZone(t *testing.T) {
	tp, err := NewTimeProvider("Asia/Tokyo")
	require.NoError(t, err)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "09:00", tp.Format(ts, "15:04"))
}

func TestGetTimeProviderDefaults(t *testing.T) {
	mu.Lock()
	globalTimeProvider = nil
	mu.Unlock()

	tp := GetTimeProvider()
	require.NotNil(t, tp)
	assert.Equal(t, time.Local, tp.Location())

	require.NoError(t, InitializeTimeProvider("UTC"))
	assert.Equal(t, time.UTC, GetTimeProvider().Location())
}
