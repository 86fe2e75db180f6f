package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDBNFilePath(t *testing.T) {
	t.Setenv("DBN_FILE_PATH", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DBN_FILE_PATH", "/tmp/feed.jsonl")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.BindAddress)
	assert.Equal(t, "./mbo.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogFilter)
	assert.Equal(t, 1024, cfg.MaxSubscribers)
	assert.Equal(t, 1024, cfg.SubscriberQueueCap)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 50, cfg.BatchIntervalMS)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("DBN_FILE_PATH", "/tmp/feed.jsonl")
	t.Setenv("BIND_ADDRESS", "127.0.0.1:8080")
	t.Setenv("MAX_SUBSCRIBERS", "16")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.BindAddress)
	assert.Equal(t, 16, cfg.MaxSubscribers)
}
