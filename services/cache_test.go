package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-birthdays/models"
	"paper-birthdays/repository"
)

func TestCacheHitWithinTTL(t *testing.T) {
	c := NewCache(time.Hour)
	item := &repository.HistoryItem{Paper: models.Paper{ArxivID: "2301.00001"}}

	c.Set("2025-06-15_all", item)

	got, ok := c.Get("2025-06-15_all")
	require.True(t, ok)
	assert.Equal(t, "2301.00001", got.Paper.ArxivID)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Hour)
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", &repository.HistoryItem{})

	now = now.Add(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	// Expired entries are dropped, not resurrected.
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Hour)
	c.Set("k", &repository.HistoryItem{})
	c.Invalidate("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCacheMissingKey(t *testing.T) {
	c := NewCache(time.Hour)
	_, ok := c.Get("absent")
	assert.False(t, ok)
}
