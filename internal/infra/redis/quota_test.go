package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLocalMidnight(t *testing.T) {
	t.Run("UTC", func(t *testing.T) {
		now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
		got := NextLocalMidnight(now, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("just before midnight", func(t *testing.T) {
		now := time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
		got := NextLocalMidnight(now, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("exactly at midnight rolls to next day", func(t *testing.T) {
		now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
		got := NextLocalMidnight(now, time.UTC)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("same instant shifts with the owner timezone", func(t *testing.T) {
		tokyo, err := time.LoadLocation("Asia/Tokyo")
		require.NoError(t, err)
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		// 2026-03-14 20:00 UTC is already March 15 in Tokyo but still
		// March 14 afternoon in New York.
		instant := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

		tokyoMidnight := NextLocalMidnight(instant, tokyo)
		assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, tokyo), tokyoMidnight)

		nyMidnight := NextLocalMidnight(instant, ny)
		assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, ny), nyMidnight)

		assert.True(t, nyMidnight.Before(tokyoMidnight))
	})

	t.Run("month and year rollover", func(t *testing.T) {
		now := time.Date(2026, 12, 31, 18, 0, 0, 0, time.UTC)
		got := NextLocalMidnight(now, time.UTC)
		assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), got)
	})
}
