package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/argon-desk/argon_desk/internal/ledger"
)

const (
	defaultDataDirName   = ".argon-desk"
	localchainDirName    = "localchain"
	profileFileName      = "user-profile.json"
	defaultLocalchainExt = ".db"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string `envconfig:"APP_NAME" default:"ArgonDesk"`
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"1818"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	DataDir            string `envconfig:"DATA_DIR"`
	LocalchainDir      string `envconfig:"LOCALCHAIN_DIR"`
	LocalchainPassword string `envconfig:"LOCALCHAIN_PASSWORD"`

	MainchainURL          string        `envconfig:"MAINCHAIN_URL"`
	MainchainTimeout      time.Duration `envconfig:"MAINCHAIN_TIMEOUT" default:"10s"`
	GenesisUTCTime        int64         `envconfig:"GENESIS_UTC_TIME"`
	TickDuration          time.Duration `envconfig:"TICK_DURATION" default:"1m"`
	EscrowExpirationTicks uint32        `envconfig:"ESCROW_EXPIRATION_TICKS" default:"60"`

	ProfilePath        string `envconfig:"PROFILE_PATH"`
	ProfileDatabaseURL string `envconfig:"PROFILE_DATABASE_URL"`
	RedisURL           string `envconfig:"REDIS_URL"`
	UpdatesChannel     string `envconfig:"UPDATES_CHANNEL" default:"argon-desk:wallet"`

	APIToken       string        `envconfig:"API_TOKEN"`
	BrokerTimeout  time.Duration `envconfig:"BROKER_TIMEOUT" default:"5s"`
	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDataDirName)
	}
	cfg.fillPaths()

	if cfg.TickDuration <= 0 {
		return Config{}, fmt.Errorf("TICK_DURATION must be positive")
	}
	if cfg.MainchainTimeout <= 0 {
		return Config{}, fmt.Errorf("MAINCHAIN_TIMEOUT must be positive")
	}

	return cfg, nil
}

func (c *Config) fillPaths() {
	if c.LocalchainDir == "" {
		c.LocalchainDir = filepath.Join(c.DataDir, localchainDirName)
	}
	if c.ProfilePath == "" {
		c.ProfilePath = filepath.Join(c.DataDir, profileFileName)
	}
}

// WithDataDir relocates the data directory along with the localchain
// directory and profile file derived from it.
func (c Config) WithDataDir(dir string) Config {
	c.DataDir = dir
	c.LocalchainDir = ""
	c.ProfilePath = ""
	c.fillPaths()
	return c
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf("127.0.0.1:%s", c.Port)
}

// ChainConfig returns the ledger timing parameters used when opening localchains.
func (c Config) ChainConfig() ledger.ChainConfig {
	genesis := time.Time{}
	if c.GenesisUTCTime > 0 {
		genesis = time.UnixMilli(c.GenesisUTCTime).UTC()
	}
	return ledger.ChainConfig{
		GenesisUTCTime:        genesis,
		TickDuration:          c.TickDuration,
		EscrowExpirationTicks: c.EscrowExpirationTicks,
	}
}

// LocalchainPath resolves the storage path used for a named localchain.
func (c Config) LocalchainPath(name string) string {
	if !strings.HasSuffix(name, defaultLocalchainExt) {
		name += defaultLocalchainExt
	}
	return filepath.Join(c.LocalchainDir, name)
}

// DevMainchainURL selects the in-process development chain.
const DevMainchainURL = "dev"

// UsesDevMainchain reports whether the daemon should run its own development chain.
func (c Config) UsesDevMainchain() bool {
	return c.IsDev() && c.MainchainURL == DevMainchainURL
}

// IsDev reports whether the application runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
