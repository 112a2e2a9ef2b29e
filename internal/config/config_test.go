package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8190), cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, DefaultMirrorDatabasePath, cfg.Mirror.Path)
	assert.Equal(t, DefaultShopifyAPIVersion, cfg.Shopify.APIVersion)
	assert.Equal(t, time.Second, cfg.Shopify.RetryBaseDelay)
	assert.Equal(t, 2, cfg.Sync.MaxConcurrent)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.PageDelay)
	assert.Equal(t, DispatchInProcess, cfg.Sync.Dispatch)
	assert.Equal(t, time.Minute, cfg.Cache.SweepInterval)
	assert.False(t, cfg.Schedule.Enabled)
	assert.Equal(t, "0 3 * * *", cfg.Schedule.EventCleanup)
	assert.Equal(t, 30, cfg.Tasks.EventRetentionDays)
	assert.Equal(t, 3*time.Hour, cfg.Tasks.ReleaseAfter)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SYNC_PAGE_DELAY", "2s")
	t.Setenv("SYNC_DISPATCH", "queue")
	t.Setenv("SHOPIFY_SHOP_DOMAIN", "example.myshopify.com")

	cfg := NewConfig()

	assert.Equal(t, int32(9000), cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.Sync.PageDelay)
	assert.Equal(t, DispatchQueue, cfg.Sync.Dispatch)
	assert.Equal(t, "example.myshopify.com", cfg.Shopify.ShopDomain)
}
