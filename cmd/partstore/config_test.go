package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/partstore"
	"github.com/hupe1980/partstore/internal/conv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partstore.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
directory: /var/lib/partstore/orders-0
partition: orders-0
log:
  level: debug
  format: json
storage:
  durability: sync
  batch_size: 32K
  max_segment_size: 1G
  compaction: true
archive:
  backend: s3
  codec: lz4
  block_size: 1M
  max_transfers: 8
  io_limit: 50M
  prune: false
  s3:
    bucket: segments
    prefix: prod/
    region: eu-central-1
  dynamo:
    table: partstore-manifests
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/partstore/orders-0", cfg.Directory)
	assert.Equal(t, "orders-0", cfg.Partition)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ByteSize(32*1024), cfg.Storage.BatchSize)
	assert.Equal(t, ByteSize(1024*1024*1024), cfg.Storage.MaxSegmentSize)
	assert.True(t, cfg.Storage.Compaction)
	assert.Equal(t, "s3", cfg.Archive.Backend)
	assert.Equal(t, ByteSize(1024*1024), cfg.Archive.BlockSize)
	assert.Equal(t, int64(8), cfg.Archive.MaxTransfers)
	assert.Equal(t, ByteSize(50*1024*1024), cfg.Archive.IOLimit)
	require.NotNil(t, cfg.Archive.Prune)
	assert.False(t, *cfg.Archive.Prune)
	assert.Equal(t, "segments", cfg.Archive.S3.Bucket)
	assert.Equal(t, "partstore-manifests", cfg.Archive.Dynamo.Table)

	// Defaults survive for sections the file leaves out.
	assert.Equal(t, "./archive", cfg.Archive.Local.Root)

	d, err := cfg.durability()
	require.NoError(t, err)
	assert.Equal(t, partstore.DurabilitySync, d)

	ctrl, err := cfg.Controller()
	require.NoError(t, err)
	rc := ctrl.Config()
	assert.Equal(t, int64(8), rc.MaxTransfers)
	assert.Equal(t, int64(50*1024*1024), rc.IOLimitBytesPerSec)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
	opts, err := cfg.StorageOptions(cfg.Logger())
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"UnknownField", "directry: ./data\n"},
		{"BadSize", "storage:\n  batch_size: lots\n"},
		{"SizeNotScalar", "storage:\n  batch_size: [1, 2]\n"},
		{"BadDurability", "storage:\n  durability: sometimes\n"},
		{"BadLogLevel", "log:\n  level: loud\n"},
		{"BadLogFormat", "log:\n  format: xml\n"},
		{"BadCodec", "archive:\n  codec: brotli\n"},
		{"BadBackend", "archive:\n  backend: tape\n"},
		{"S3WithoutBucket", "archive:\n  backend: s3\n"},
		{"MinioWithoutEndpoint", "archive:\n  backend: minio\n  minio:\n    bucket: b\n"},
		{"EmptyDirectory", "directory: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			assert.Error(t, ParseConfig([]byte(tt.yaml), &cfg))
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Archive.IOLimit = ByteSize(math.MaxUint64)
	_, err := cfg.Controller()
	assert.ErrorIs(t, err, conv.ErrOverflow)
}

func TestByteSize(t *testing.T) {
	var v struct {
		Plain ByteSize `yaml:"plain"`
		Unit  ByteSize `yaml:"unit"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("plain: 4096\nunit: 16K\n"), &v))
	assert.Equal(t, ByteSize(4096), v.Plain)
	assert.Equal(t, ByteSize(16*1024), v.Unit)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "plain: 4K\nunit: 16K\n", string(out))
}
