// Package config resolves cartsync settings from defaults, an optional CUE
// file and CARTSYNC_* environment variables. Command-line flags are applied
// on top by the CLI.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of environment overrides, e.g. CARTSYNC_REMOTE_URL.
const EnvPrefix = "CARTSYNC"

//go:embed schema.cue
var schemaCUE string

// Config holds every cartsync setting.
type Config struct {
	// StoragePath is the SQLite file holding the on-device snapshot.
	StoragePath string `envconfig:"STORAGE_PATH"`
	// StorageKey is the key the snapshot is stored under.
	StorageKey string `envconfig:"STORAGE_KEY"`

	RemoteURL     string        `envconfig:"REMOTE_URL"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT"`
	RemoteRPS     float64       `envconfig:"REMOTE_RPS"`
	RemoteBurst   int           `envconfig:"REMOTE_BURST"`

	// RedisAddr selects Redis-backed cart lines for serve. Empty keeps
	// lines in memory.
	RedisAddr   string `envconfig:"REDIS_ADDR"`
	RedisPrefix string `envconfig:"REDIS_PREFIX"`
	ListenAddr  string `envconfig:"LISTEN_ADDR"`

	SerializeItems bool   `envconfig:"SERIALIZE_ITEMS"`
	OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT"`

	// UserID is the signed-in user for cart commands. Empty is anonymous.
	UserID string `envconfig:"USER_ID"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		StoragePath:   "cartsync.db",
		StorageKey:    "cart_state",
		RemoteURL:     "http://localhost:8080",
		RemoteTimeout: 10 * time.Second,
		RemoteRPS:     20,
		RemoteBurst:   5,
		RedisPrefix:   "cartsync",
		ListenAddr:    ":8080",
	}
}

// fileConfig mirrors #Config. Pointers distinguish absent from zero.
type fileConfig struct {
	StoragePath    *string  `json:"storagePath"`
	StorageKey     *string  `json:"storageKey"`
	RemoteURL      *string  `json:"remoteURL"`
	RemoteTimeout  *string  `json:"remoteTimeout"`
	RemoteRPS      *float64 `json:"remoteRPS"`
	RemoteBurst    *int     `json:"remoteBurst"`
	RedisAddr      *string  `json:"redisAddr"`
	RedisPrefix    *string  `json:"redisPrefix"`
	ListenAddr     *string  `json:"listenAddr"`
	SerializeItems *bool    `json:"serializeItems"`
	OTLPEndpoint   *string  `json:"otlpEndpoint"`
	UserID         *string  `json:"userID"`
}

// Load resolves settings: defaults, then the CUE file at path (if path is
// non-empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that no layer may leave unusable.
func (c Config) Validate() error {
	var errs []error
	if c.StoragePath == "" {
		errs = append(errs, errors.New("storage path is empty"))
	}
	if c.StorageKey == "" {
		errs = append(errs, errors.New("storage key is empty"))
	}
	if c.RemoteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("remote timeout %s is not positive", c.RemoteTimeout))
	}
	if c.RemoteRPS < 0 {
		errs = append(errs, fmt.Errorf("remote rps %v is negative", c.RemoteRPS))
	}
	if c.RemoteBurst < 1 {
		errs = append(errs, fmt.Errorf("remote burst %d is below 1", c.RemoteBurst))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}

	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	var fc fileConfig
	if err := value.Decode(&fc); err != nil {
		return fmt.Errorf("config: %s: decode: %w", path, err)
	}
	return c.merge(fc)
}

func (c *Config) merge(fc fileConfig) error {
	setString(&c.StoragePath, fc.StoragePath)
	setString(&c.StorageKey, fc.StorageKey)
	setString(&c.RemoteURL, fc.RemoteURL)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.RedisPrefix, fc.RedisPrefix)
	setString(&c.ListenAddr, fc.ListenAddr)
	setString(&c.OTLPEndpoint, fc.OTLPEndpoint)
	setString(&c.UserID, fc.UserID)
	if fc.RemoteTimeout != nil {
		d, err := time.ParseDuration(*fc.RemoteTimeout)
		if err != nil {
			return fmt.Errorf("config: remoteTimeout: %w", err)
		}
		c.RemoteTimeout = d
	}
	if fc.RemoteRPS != nil {
		c.RemoteRPS = *fc.RemoteRPS
	}
	if fc.RemoteBurst != nil {
		c.RemoteBurst = *fc.RemoteBurst
	}
	if fc.SerializeItems != nil {
		c.SerializeItems = *fc.SerializeItems
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
