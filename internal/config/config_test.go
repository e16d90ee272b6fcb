package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maze-rewards/internal/payout"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(5), cfg.Rewards.DailyLogin)
	assert.Equal(t, "decay", cfg.Rewards.Ad.Mode)
	assert.Equal(t, int64(3), cfg.Consumables.FreeCap)
	assert.Equal(t, 5*time.Second, cfg.Platform.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Online.Window)
	assert.Equal(t, payout.DefaultPolicy(), cfg.Payout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
rewards:
  daily_login: 7
  ad:
    mode: flat
    flat_amount: 15
admin:
  telegram_ids: [11, 22]
`)
	t.Setenv("REWARDS_INVITE", "25")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(7), cfg.Rewards.DailyLogin)
	assert.Equal(t, int64(25), cfg.Rewards.Invite)
	assert.Equal(t, "flat", cfg.Rewards.Ad.Mode)
	assert.Equal(t, int64(15), cfg.Rewards.Ad.FlatAmount)
	assert.True(t, cfg.IsTelegramAdmin(22))
	assert.False(t, cfg.IsTelegramAdmin(33))
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := writeConfig(t, `
rewards:
  ad:
    mode: random
`)
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rewards.ad.mode")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Rewards:     RewardsConfig{Ad: AdConfig{Mode: "decay", BaseAmount: 50, Floor: 2}},
			Consumables: ConsumablesConfig{FreeCap: 3, Cost: 50},
			Platform:    PlatformConfig{Timeout: time.Second},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"floor above base", func(c *Config) { c.Rewards.Ad.Floor = 60 }},
		{"negative floor", func(c *Config) { c.Rewards.Ad.Floor = -1 }},
		{"negative free cap", func(c *Config) { c.Consumables.FreeCap = -1 }},
		{"free consumables", func(c *Config) { c.Consumables.Cost = 0 }},
		{"no platform timeout", func(c *Config) { c.Platform.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "maze"}
	assert.Equal(t, "postgres://u:p@db:5432/maze?sslmode=disable", d.DSN())

	d.SSLMode = "require"
	assert.Equal(t, "postgres://u:p@db:5432/maze?sslmode=require", d.DSN())
}

func TestDSNEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "maze admin",
		Password: "p@ss/w:rd#1?%",
		Name:     "maze",
	}

	parsed, err := pgconn.ParseConfig(d.DSN())
	require.NoError(t, err)
	assert.Equal(t, "db.internal", parsed.Host)
	assert.Equal(t, uint16(5432), parsed.Port)
	assert.Equal(t, "maze admin", parsed.User)
	assert.Equal(t, "p@ss/w:rd#1?%", parsed.Password)
	assert.Equal(t, "maze", parsed.Database)
}

func TestLoadKeepsZeroPayoutBase(t *testing.T) {
	dir := writeConfig(t, `
payout:
  base: 0
`)
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Payout.Base)
	assert.Equal(t, payout.DefaultPolicy().Levels, cfg.Payout.Levels)
}
