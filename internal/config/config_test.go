package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "ledger.yaml", "server:\n  port: 9090\n")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Equal(t, filepath.Join("data", "ledger.db"), c.Storage.Path)
	assert.Equal(t, 2*time.Second, c.Server.LockTimeout)
	assert.Equal(t, 2*time.Second, c.OfferCacheTTL())
	assert.Equal(t, []string{"*"}, c.Server.CORSOrigins)
	assert.Equal(t, "energy.trades", c.Events.Topic)
	assert.Equal(t, AuthStatic, c.Auth.Mode)

	price, err := c.Price()
	require.NoError(t, err)
	assert.Equal(t, "1", price.String())
}

func TestLoadKeepsExplicitZeroCacheTTL(t *testing.T) {
	p := writeFile(t, t.TempDir(), "ledger.yaml", "offers:\n  cache_ttl: 0s\n")
	c, err := Load(p)
	require.NoError(t, err)
	assert.Zero(t, c.OfferCacheTTL())
}

func TestLoadEnvOverrides(t *testing.T) {
	p := writeFile(t, t.TempDir(), "ledger.yaml", "server:\n  port: 9090\n")
	t.Setenv("API_PORT", "7070")
	t.Setenv("API_ENV", "production")
	t.Setenv("LEDGER_STORE", "sqlite")
	t.Setenv("LEDGER_DB_PATH", "/tmp/x.db")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUTH_URL", "http://users:5000")

	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Server.Port)
	assert.Equal(t, "production", c.Server.Env)
	assert.Equal(t, DriverSQLite, c.Storage.Driver)
	assert.Equal(t, "/tmp/x.db", c.Storage.Path)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Events.Brokers)
	assert.Equal(t, AuthRemote, c.Auth.Mode)
	assert.Equal(t, "http://users:5000", c.Auth.URL)
}

func TestLoadSeedFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "seed.yaml", `
seed:
  - owner: alice
    name: Alice solar
    latitude: 6.9
    longitude: 79.8
    units: 100
    units_for_sale: 20
    available: true
  - owner: bob
    units: 5
`)
	p := writeFile(t, dir, "ledger.yaml", `
seed_file: seed.yaml
seed:
  - owner: bob
    name: Bob roof
    units: 50
    units_for_sale: 10
  - owner: carol
    units: 1
`)
	c, err := Load(p)
	require.NoError(t, err)
	require.Len(t, c.Seed, 3)
	assert.Equal(t, "alice", c.Seed[0].Owner)
	assert.Equal(t, int64(20), c.Seed[0].UnitsForSale)
	assert.Equal(t, "Bob roof", c.Seed[1].Name)
	assert.Equal(t, int64(50), c.Seed[1].Units)
	assert.Equal(t, "carol", c.Seed[2].Owner)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"bad price", func(c *Config) { c.Pricing.PricePerUnit = "cheap" }},
		{"negative price", func(c *Config) { c.Pricing.PricePerUnit = "-1" }},
		{"remote without url", func(c *Config) { c.Auth.Mode = AuthRemote }},
		{"unknown auth", func(c *Config) { c.Auth.Mode = "ldap" }},
		{"token without account", func(c *Config) { c.Auth.Tokens = []TokenConfig{{Token: "t"}} }},
		{"events without brokers", func(c *Config) { c.Events.Enabled = true }},
		{"seed oversold", func(c *Config) { c.Seed = []SeedGrid{{Owner: "a", Units: 1, UnitsForSale: 2}} }},
		{"seed bad location", func(c *Config) { c.Seed = []SeedGrid{{Owner: "a", Latitude: 91}} }},
		{"seed without owner", func(c *Config) { c.Seed = []SeedGrid{{Units: 1}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
	assert.NoError(t, Default().Validate())
}

func TestMergeSeed(t *testing.T) {
	base := []SeedGrid{{Owner: "a", Units: 1}, {Owner: "b", Units: 2}}
	out := MergeSeed(base, []SeedGrid{{Owner: "b", Units: 9}, {Owner: "c", Units: 3}})
	require.Len(t, out, 3)
	assert.Equal(t, int64(9), out[1].Units)
	assert.Equal(t, "c", out[2].Owner)
	assert.Equal(t, int64(2), base[1].Units)
}

func TestSeedGridPrice(t *testing.T) {
	assert.True(t, SeedGrid{}.Price().IsZero())
	assert.Equal(t, "0.4", SeedGrid{PricePerUnit: "0.40"}.Price().String())
}
