package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	DefinitionsDir string `yaml:"definitions_dir" env:"BINGO_DEFINITIONS_DIR"`
	DataDir        string `yaml:"data_dir" env:"BINGO_DATA_DIR"`

	Store       string `yaml:"store" env:"BINGO_STORE"`
	SQLitePath  string `yaml:"sqlite_path" env:"BINGO_SQLITE_PATH"`
	RedisURL    string `yaml:"redis_url" env:"BINGO_REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"BINGO_REDIS_PREFIX"`

	// ListenAddr serves websocket producers on /v1/events when set.
	ListenAddr string `yaml:"listen_addr" env:"BINGO_LISTEN_ADDR"`

	// Seed 0 means "pick one at startup".
	Seed uint64 `yaml:"seed" env:"BINGO_SEED"`

	TickMS              int `yaml:"tick_ms" env:"BINGO_TICK_MS"`
	FlushEveryTicks     int `yaml:"flush_every_ticks" env:"BINGO_FLUSH_EVERY_TICKS"`
	CollectEveryTicks   int `yaml:"collect_every_ticks" env:"BINGO_COLLECT_EVERY_TICKS"`
	EnterAreaEveryTicks int `yaml:"enterarea_every_ticks" env:"BINGO_ENTERAREA_EVERY_TICKS"`

	AuditLog bool `yaml:"audit_log" env:"BINGO_AUDIT_LOG"`
	WinIndex bool `yaml:"win_index" env:"BINGO_WIN_INDEX"`
	// ArchiveRounds keeps a copy of a game's state under data_dir/archives
	// before it is wiped for every player.
	ArchiveRounds bool `yaml:"archive_rounds" env:"BINGO_ARCHIVE_ROUNDS"`

	Mirror MirrorConfig `yaml:"mirror" envPrefix:"BINGO_MIRROR_"`
}

// MirrorConfig uploads snapshots and round archives to an S3-compatible
// bucket. Empty Endpoint disables it.
type MirrorConfig struct {
	Endpoint        string `yaml:"endpoint" env:"ENDPOINT"`
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	Workers         int    `yaml:"workers" env:"WORKERS"`
}

func (m MirrorConfig) Enabled() bool { return strings.TrimSpace(m.Endpoint) != "" }

func Defaults() Config {
	return Config{
		DefinitionsDir:      filepath.Join("configs", "games"),
		DataDir:             "data",
		Store:               StoreFile,
		RedisPrefix:         "bingo",
		TickMS:              50,
		FlushEveryTicks:     1200,
		CollectEveryTicks:   10,
		EnterAreaEveryTicks: 5,
		AuditLog:            true,
		WinIndex:            true,
		ArchiveRounds:       true,
	}
}

// Load reads path (optional) over the defaults, applies BINGO_* environment
// overrides, then normalizes and validates.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("bingo.yaml: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("bingo.yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	if c.Store == "" {
		c.Store = StoreFile
	}
	c.DefinitionsDir = strings.TrimSpace(c.DefinitionsDir)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.RedisPrefix = strings.TrimSpace(c.RedisPrefix)
	if c.RedisPrefix == "" {
		c.RedisPrefix = "bingo"
	}
	if c.Store == StoreSQLite && strings.TrimSpace(c.SQLitePath) == "" {
		c.SQLitePath = filepath.Join(c.DataDir, "bingo.sqlite")
	}
}

func (c Config) Validate() error {
	c.Normalize()
	if c.DefinitionsDir == "" {
		return fmt.Errorf("definitions_dir must not be empty")
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	case StoreRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("store redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown store %q (want file|sqlite|redis)", c.Store)
	}
	if c.TickMS <= 0 {
		return fmt.Errorf("tick_ms must be > 0")
	}
	if c.FlushEveryTicks <= 0 {
		return fmt.Errorf("flush_every_ticks must be > 0")
	}
	if c.CollectEveryTicks <= 0 {
		return fmt.Errorf("collect_every_ticks must be > 0")
	}
	if c.EnterAreaEveryTicks <= 0 {
		return fmt.Errorf("enterarea_every_ticks must be > 0")
	}
	if c.Mirror.Enabled() && (c.Mirror.Bucket == "" || c.Mirror.AccessKeyID == "" || c.Mirror.SecretAccessKey == "") {
		return fmt.Errorf("mirror requires bucket, access_key_id and secret_access_key")
	}
	return nil
}

func (c Config) Tick() time.Duration { return time.Duration(c.TickMS) * time.Millisecond }

func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushEveryTicks) * c.Tick()
}
