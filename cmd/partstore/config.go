package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"github.com/hupe1980/partstore"
	"github.com/hupe1980/partstore/internal/compress"
	"github.com/hupe1980/partstore/internal/conv"
	"github.com/hupe1980/partstore/resource"
	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count written either as an integer or with a unit
// such as 16K or 4G.
type ByteSize uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: byte size must be a scalar", value.Line)
	}
	n, err := parseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (b ByteSize) MarshalYAML() (any, error) {
	return bytefmt.ByteSize(uint64(b)), nil
}

func (b ByteSize) String() string { return bytefmt.ByteSize(uint64(b)) }

func parseByteSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	n, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n, nil
}

// Config is the YAML configuration of the command.
type Config struct {
	Directory string        `yaml:"directory"`
	Partition string        `yaml:"partition"`
	Log       LogConfig     `yaml:"log"`
	Storage   StorageConfig `yaml:"storage"`
	Archive   ArchiveConfig `yaml:"archive"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig mirrors the partstore options.
type StorageConfig struct {
	Durability     string   `yaml:"durability"`
	BatchSize      ByteSize `yaml:"batch_size"`
	MaxSegmentSize ByteSize `yaml:"max_segment_size"`
	Compaction     bool     `yaml:"compaction"`
}

// ArchiveConfig configures where segments are archived.
type ArchiveConfig struct {
	// Backend is one of local, s3 or minio.
	Backend      string       `yaml:"backend"`
	Codec        string       `yaml:"codec"`
	BlockSize    ByteSize     `yaml:"block_size"`
	MaxTransfers int64        `yaml:"max_transfers"`
	MemoryLimit  ByteSize     `yaml:"memory_limit"`
	IOLimit      ByteSize     `yaml:"io_limit"`
	Prune        *bool        `yaml:"prune"`
	Local        LocalConfig  `yaml:"local"`
	S3           S3Config     `yaml:"s3"`
	Minio        MinioConfig  `yaml:"minio"`
	Dynamo       DynamoConfig `yaml:"dynamo"`
}

// LocalConfig configures the file system backend.
type LocalConfig struct {
	Root string `yaml:"root"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// MinioConfig configures the MinIO backend.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// DynamoConfig enables the DynamoDB manifest catalog when Table is set.
type DynamoConfig struct {
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Directory: "./data",
		Partition: "default",
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Storage: StorageConfig{
			Durability: "async",
		},
		Archive: ArchiveConfig{
			Backend:      "local",
			Codec:        "zstd",
			MaxTransfers: 4,
			Local:        LocalConfig{Root: "./archive"},
		},
	}
}

// LoadConfig reads the YAML file at path on top of DefaultConfig.
// An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := ParseConfig(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes data into cfg, rejecting unknown fields.
func ParseConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks values the YAML decoder cannot.
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.New("config: directory must be set")
	}
	if c.Partition == "" {
		return errors.New("config: partition must be set")
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, err := c.durability(); err != nil {
		return err
	}
	if _, err := compress.ParseCodec(c.Archive.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Archive.Backend {
	case "local":
		if c.Archive.Local.Root == "" {
			return errors.New("config: archive.local.root must be set")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return errors.New("config: archive.s3.bucket must be set")
		}
	case "minio":
		if c.Archive.Minio.Endpoint == "" || c.Archive.Minio.Bucket == "" {
			return errors.New("config: archive.minio.endpoint and bucket must be set")
		}
	default:
		return fmt.Errorf("config: unknown archive backend %q", c.Archive.Backend)
	}
	return nil
}

func (c *Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}

func (c *Config) durability() (partstore.Durability, error) {
	switch c.Storage.Durability {
	case "", "async":
		return partstore.DurabilityAsync, nil
	case "sync":
		return partstore.DurabilitySync, nil
	default:
		return 0, fmt.Errorf("config: unknown durability %q", c.Storage.Durability)
	}
}

// Logger builds the configured logger.
func (c *Config) Logger() *partstore.Logger {
	level, _ := c.logLevel()
	if c.Log.Format == "json" {
		return partstore.NewJSONLogger(level)
	}
	return partstore.NewTextLogger(level)
}

// StorageOptions translates the storage section into partstore options.
func (c *Config) StorageOptions(logger *partstore.Logger) ([]partstore.Option, error) {
	d, err := c.durability()
	if err != nil {
		return nil, err
	}
	opts := []partstore.Option{
		partstore.WithLogger(logger),
		partstore.WithDurability(d),
		partstore.WithCompaction(c.Storage.Compaction),
	}
	if c.Storage.BatchSize > 0 {
		n, err := conv.Uint64ToInt(uint64(c.Storage.BatchSize))
		if err != nil {
			return nil, fmt.Errorf("config: storage.batch_size: %w", err)
		}
		opts = append(opts, partstore.WithBatchSize(n))
	}
	if c.Storage.MaxSegmentSize > 0 {
		opts = append(opts, partstore.WithMaxSegmentSize(uint64(c.Storage.MaxSegmentSize)))
	}
	return opts, nil
}

// Controller builds the transfer limits of the archive section.
func (c *Config) Controller() (*resource.Controller, error) {
	mem, err := conv.Uint64ToInt64(uint64(c.Archive.MemoryLimit))
	if err != nil {
		return nil, fmt.Errorf("config: archive.memory_limit: %w", err)
	}
	ioLimit, err := conv.Uint64ToInt64(uint64(c.Archive.IOLimit))
	if err != nil {
		return nil, fmt.Errorf("config: archive.io_limit: %w", err)
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:   mem,
		MaxTransfers:       c.Archive.MaxTransfers,
		IOLimitBytesPerSec: ioLimit,
	}), nil
}
