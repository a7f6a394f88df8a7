// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml"
	"github.com/spf13/viper"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

const (
	configDir  = "config"
	configFile = "sigreq.toml"
)

type StorageType string

const (
	MemoryStorage   StorageType = "memory"
	BadgerStorage   StorageType = "badger"
	SQLiteStorage   StorageType = "sqlite"
	PostgresStorage StorageType = "postgres"
	RedisStorage    StorageType = "redis"
)

// LogLevel defines the default and per-module log level.
type LogLevel struct {
	Default string
	Modules [][2]string
}

// Parse parses a string such as "error;keycache=info" into a LogLevel.
func (l LogLevel) Parse(s string) LogLevel {
	for _, s := range strings.Split(s, ";") {
		s := strings.SplitN(s, "=", 2)
		if len(s) == 1 {
			l.Default = s[0]
		} else {
			l.Modules = append(l.Modules, *(*[2]string)(s))
		}
	}
	return l
}

// SetDefault sets the default log level.
func (l LogLevel) SetDefault(level string) LogLevel {
	l.Default = level
	return l
}

// SetModule sets the log level for a module.
func (l LogLevel) SetModule(module, level string) LogLevel {
	l.Modules = append(l.Modules, [2]string{module, level})
	return l
}

// String converts the log level into a string, for example
// "error;keycache=debug".
func (l LogLevel) String() string {
	s := new(strings.Builder)
	s.WriteString(l.Default)
	for _, m := range l.Modules {
		fmt.Fprintf(s, ";%s=%s", m[0], m[1])
	}
	return s.String()
}

var DefaultLogLevels = LogLevel{}.
	SetDefault("error").
	SetModule("engine", "info").
	// SetModule("keycache", "debug").
	// SetModule("mirror", "debug").
	SetModule("resolver", "info").
	String()

type Config struct {
	Log             Log             `toml:"log" mapstructure:"log"`
	Cache           Cache           `toml:"cache" mapstructure:"cache"`
	Storage         Storage         `toml:"storage" mapstructure:"storage"`
	Mirror          Mirror          `toml:"mirror" mapstructure:"mirror"`
	Ledger          Ledger          `toml:"ledger" mapstructure:"ledger"`
	Instrumentation Instrumentation `toml:"instrumentation" mapstructure:"instrumentation"`
}

type Log struct {
	Level  string `toml:"level" mapstructure:"level"`
	Format string `toml:"format" mapstructure:"format" validate:"omitempty,oneof=plain text json"`
}

type Cache struct {
	// FreshWindow is how long cached key material is used without checking
	// the mirror, even when a refresh is requested.
	FreshWindow time.Duration `toml:"fresh-window" mapstructure:"fresh-window" validate:"gt=0"`

	// AccountYoungWindow and NodeYoungWindow extend the fresh window for
	// lookups that do not force a refresh.
	AccountYoungWindow time.Duration `toml:"account-young-window" mapstructure:"account-young-window" validate:"gte=0"`
	NodeYoungWindow    time.Duration `toml:"node-young-window" mapstructure:"node-young-window" validate:"gte=0"`

	// ReclaimAfter is how long a refresh lease is held before another
	// process may take it over.
	ReclaimAfter time.Duration `toml:"reclaim-after" mapstructure:"reclaim-after" validate:"gt=0"`

	// LeaseWait bounds how long a lookup waits for another process to
	// populate a record it has never seen. It must cover a mirror fetch.
	LeaseWait time.Duration `toml:"lease-wait" mapstructure:"lease-wait" validate:"gte=0"`

	SessionCacheSize int `toml:"session-cache-size" mapstructure:"session-cache-size" validate:"gt=0"`

	// Entries is the number of entities each in-process cache holds.
	Entries int `toml:"entries" mapstructure:"entries" validate:"gt=0"`
}

type Storage struct {
	Type  StorageType `toml:"type" mapstructure:"type" validate:"oneof=memory badger sqlite postgres redis"`
	Path  string      `toml:"path" mapstructure:"path" validate:"required_if=Type badger,required_if=Type sqlite"`
	DSN   string      `toml:"dsn" mapstructure:"dsn" validate:"required_if=Type postgres"`
	Redis Redis       `toml:"redis" mapstructure:"redis"`
}

type Redis struct {
	Address  string `toml:"address" mapstructure:"address"`
	Password string `toml:"password" mapstructure:"password"`
	DB       int    `toml:"db" mapstructure:"db" validate:"gte=0"`
}

type Mirror struct {
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	Networks []Network     `toml:"networks" mapstructure:"networks" validate:"dive"`
}

type Network struct {
	Name string `toml:"name" mapstructure:"name" validate:"required"`
	URL  string `toml:"url" mapstructure:"url" validate:"required,url"`
}

type Ledger struct {
	// SystemEntityMax is the highest reserved system entity number.
	SystemEntityMax uint64 `toml:"system-entity-max" mapstructure:"system-entity-max"`
}

type Instrumentation struct {
	// Listen is the address the Prometheus endpoint listens on. Empty
	// disables it.
	Listen string `toml:"listen" mapstructure:"listen"`
}

func Default() *Config {
	c := new(Config)
	c.Log.Level = DefaultLogLevels
	c.Log.Format = "plain"
	c.Cache.FreshWindow = 30 * time.Second
	c.Cache.AccountYoungWindow = 5 * time.Minute
	c.Cache.NodeYoungWindow = 6 * time.Hour
	c.Cache.ReclaimAfter = time.Minute
	c.Cache.LeaseWait = 20 * time.Second
	c.Cache.SessionCacheSize = 128
	c.Cache.Entries = 4096
	c.Storage.Type = BadgerStorage
	c.Storage.Path = filepath.Join("data", "keycache.db")
	c.Mirror.Timeout = 15 * time.Second
	c.Mirror.Networks = []Network{
		{Name: string(ledger.Mainnet), URL: "https://mainnet-public.mirrornode.hedera.com"},
		{Name: string(ledger.Testnet), URL: "https://testnet.mirrornode.hedera.com"},
		{Name: string(ledger.Previewnet), URL: "https://previewnet.mirrornode.hedera.com"},
		{Name: string(ledger.LocalNode), URL: "http://localhost:5551"},
	}
	c.Ledger.SystemEntityMax = ledger.DefaultSystemEntityMax
	c.Instrumentation.Listen = "127.0.0.1:9100"
	return c
}

// MirrorURL returns the mirror base URL for the network.
func (c *Config) MirrorURL(network ledger.Network) (string, bool) {
	for _, n := range c.Mirror.Networks {
		if ledger.Network(strings.ToLower(n.Name)) == network {
			return n.URL, true
		}
	}
	return "", false
}

var validate = validator.New()

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return errors.BadRequest.WithFormat("invalid configuration: %w", err)
	}

	seen := map[string]bool{}
	for _, n := range c.Mirror.Networks {
		name := strings.ToLower(n.Name)
		if seen[name] {
			return errors.BadRequest.WithFormat("invalid configuration: network %q is listed twice", n.Name)
		}
		seen[name] = true
	}

	// Waiters must outlast a mirror fetch
	if c.Cache.LeaseWait < c.Mirror.Timeout {
		return errors.BadRequest.WithFormat("invalid configuration: lease-wait %v is shorter than the mirror timeout %v", c.Cache.LeaseWait, c.Mirror.Timeout)
	}
	// Leases must outlive their holder's fetch
	if c.Cache.ReclaimAfter <= c.Mirror.Timeout {
		return errors.BadRequest.WithFormat("invalid configuration: reclaim-after %v must exceed the mirror timeout %v", c.Cache.ReclaimAfter, c.Mirror.Timeout)
	}
	return nil
}

func MakeAbsolute(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// File returns the path of the configuration file in dir.
func File(dir string) string {
	return filepath.Join(dir, configDir, configFile)
}

// Load reads <dir>/config/sigreq.toml. Unset values take their defaults.
func Load(dir string) (*Config, error) {
	return loadFile(dir, File(dir))
}

func loadFile(dir, file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.AddConfigPath(dir)
	err := v.ReadInConfig()
	if err != nil {
		return nil, errors.BadRequest.WithFormat("read: %w", err)
	}

	cfg := Default()
	if v.IsSet("mirror.networks") {
		cfg.Mirror.Networks = nil
	}
	err = v.Unmarshal(cfg)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("unmarshal: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Store writes the configuration to <dir>/config/sigreq.toml.
func Store(dir string, cfg *Config) error {
	err := os.MkdirAll(filepath.Join(dir, configDir), 0755)
	if err != nil {
		return errors.InternalError.WithFormat("create config dir: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, configDir, configFile))
	if err != nil {
		return errors.InternalError.WithFormat("create config file: %w", err)
	}
	defer f.Close()

	err = toml.NewEncoder(f).Encode(cfg)
	if err != nil {
		return errors.EncodingError.WithFormat("encode config: %w", err)
	}
	return nil
}
