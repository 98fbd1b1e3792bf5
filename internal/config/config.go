package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"powershare-ledger/internal/model"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Pricing PricingConfig `yaml:"pricing"`
	Offers  OffersConfig  `yaml:"offers"`
	Auth    AuthConfig    `yaml:"auth"`
	Events  EventsConfig  `yaml:"events"`

	// Optional: load seed grids from a separate YAML. Inline Seed entries
	// override file entries with the same owner.
	SeedFile string     `yaml:"seed_file"`
	Seed     []SeedGrid `yaml:"seed"`
}

type ServerConfig struct {
	Port        int           `yaml:"port"`
	Env         string        `yaml:"env"`
	CORSOrigins []string      `yaml:"cors_origins"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type PricingConfig struct {
	PricePerUnit string `yaml:"price_per_unit"`
	Currency     string `yaml:"currency"`
}

type OffersConfig struct {
	// CacheTTL of 0 disables the offer cache.
	CacheTTL *time.Duration `yaml:"cache_ttl"`
}

type AuthConfig struct {
	Mode    string        `yaml:"mode"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	Tokens  []TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Token     string `yaml:"token"`
	AccountID string `yaml:"account_id"`
	Name      string `yaml:"name"`
}

type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int      `yaml:"acks"`
}

// SeedGrid describes a grid created at startup.
type SeedGrid struct {
	Owner        string  `yaml:"owner"`
	OwnerName    string  `yaml:"owner_name"`
	Name         string  `yaml:"name"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	Units        int64   `yaml:"units"`
	UnitsForSale int64   `yaml:"units_for_sale"`
	Available    bool    `yaml:"available"`
	PricePerUnit string  `yaml:"price_per_unit"`
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	AuthStatic = "static"
	AuthRemote = "remote"
)

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not apply defaults or
// validate it. Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.SeedFile != "" {
		seedPath := c.SeedFile
		if !filepath.IsAbs(seedPath) {
			// Prefer paths relative to the config file, falling back to cwd.
			cand := filepath.Join(filepath.Dir(path), seedPath)
			if _, err := os.Stat(cand); err == nil {
				seedPath = cand
			}
		}
		loaded, err := LoadSeedFile(seedPath)
		if err != nil {
			return nil, err
		}
		c.Seed = MergeSeed(loaded, c.Seed)
	}
	return &c, nil
}

// ApplyEnv overlays deploy-time overrides read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("API_ENV"); v != "" {
		c.Server.Env = v
	}
	if v := getenv("LEDGER_STORE"); v != "" {
		c.Storage.Driver = v
	}
	if v := getenv("LEDGER_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = splitList(v)
	}
	if v := getenv("AUTH_URL"); v != "" {
		c.Auth.URL = v
		c.Auth.Mode = AuthRemote
	}
}

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.LockTimeout == 0 {
		c.Server.LockTimeout = 2 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join("data", "ledger.db")
	}
	if c.Pricing.PricePerUnit == "" {
		c.Pricing.PricePerUnit = "1"
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "PST"
	}
	if c.Offers.CacheTTL == nil {
		ttl := 2 * time.Second
		c.Offers.CacheTTL = &ttl
	}
	if c.Auth.Mode == "" {
		c.Auth.Mode = AuthStatic
	}
	if c.Auth.Timeout == 0 {
		c.Auth.Timeout = 5 * time.Second
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "energy.trades"
	}
	if c.Events.Acks == 0 {
		c.Events.Acks = -1
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.LockTimeout < 0 {
		return errors.New("server.lock_timeout must not be negative")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (memory, sqlite)", c.Storage.Driver)
	}
	if _, err := c.Price(); err != nil {
		return err
	}
	if c.Offers.CacheTTL != nil && *c.Offers.CacheTTL < 0 {
		return errors.New("offers.cache_ttl must not be negative")
	}
	switch c.Auth.Mode {
	case AuthStatic:
		for i, t := range c.Auth.Tokens {
			if t.Token == "" || t.AccountID == "" {
				return fmt.Errorf("auth.tokens[%d]: token and account_id are required", i)
			}
		}
	case AuthRemote:
		if c.Auth.URL == "" {
			return errors.New("auth.url is required for remote auth")
		}
	default:
		return fmt.Errorf("auth.mode %q is not supported (static, remote)", c.Auth.Mode)
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return errors.New("events.brokers is required when events are enabled")
	}
	for i, s := range c.Seed {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	return nil
}

// Price parses pricing.price_per_unit.
func (c *Config) Price() (decimal.Decimal, error) {
	p, err := decimal.NewFromString(c.Pricing.PricePerUnit)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pricing.price_per_unit: %w", err)
	}
	if p.IsNegative() {
		return decimal.Decimal{}, errors.New("pricing.price_per_unit must not be negative")
	}
	return p, nil
}

// OfferCacheTTL returns the configured TTL, 0 when disabled.
func (c *Config) OfferCacheTTL() time.Duration {
	if c.Offers.CacheTTL == nil {
		return 0
	}
	return *c.Offers.CacheTTL
}

func (s SeedGrid) Validate() error {
	if strings.TrimSpace(s.Owner) == "" {
		return errors.New("owner is required")
	}
	if s.Units < 0 || s.UnitsForSale < 0 || s.UnitsForSale > s.Units {
		return fmt.Errorf("units %d / units_for_sale %d are inconsistent", s.Units, s.UnitsForSale)
	}
	if err := s.Location().Validate(); err != nil {
		return err
	}
	if s.PricePerUnit != "" {
		if _, err := decimal.NewFromString(s.PricePerUnit); err != nil {
			return fmt.Errorf("price_per_unit: %w", err)
		}
	}
	return nil
}

func (s SeedGrid) Location() model.Location {
	return model.Location{Latitude: s.Latitude, Longitude: s.Longitude}
}

// Price returns the grid's override price, zero when unset.
func (s SeedGrid) Price() decimal.Decimal {
	if s.PricePerUnit == "" {
		return decimal.Zero
	}
	p, err := decimal.NewFromString(s.PricePerUnit)
	if err != nil {
		return decimal.Zero
	}
	return p
}

type seedFileWrapper struct {
	Seed []SeedGrid `yaml:"seed"`
}

func LoadSeedFile(path string) ([]SeedGrid, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w seedFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return w.Seed, nil
}

// MergeSeed overlays override entries onto base by owner, keeping base
// order and appending owners base does not know.
func MergeSeed(base, override []SeedGrid) []SeedGrid {
	out := make([]SeedGrid, 0, len(base)+len(override))
	index := make(map[string]int, len(base))
	for _, s := range base {
		index[s.Owner] = len(out)
		out = append(out, s)
	}
	for _, s := range override {
		if i, ok := index[s.Owner]; ok {
			out[i] = s
			continue
		}
		index[s.Owner] = len(out)
		out = append(out, s)
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
