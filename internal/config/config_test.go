package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncConfigDurations(t *testing.T) {
	cfg := SyncConfig{ProbeIntervalSec: 30, RequestTimeoutSec: 15}
	assert.Equal(t, 30*time.Second, cfg.ProbeInterval())
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout())
}

func TestCacheConfigMaxSizeBytes(t *testing.T) {
	cfg := CacheConfig{MaxCacheSizeMB: 500}
	assert.Equal(t, int64(500*1024*1024), cfg.MaxCacheSize())
}
