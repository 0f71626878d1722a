package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

const badgerDb = "badger"

type Config struct {
	Datadir  string `mapstructure:"DATADIR" envDefault:"" envInfo:"Data directory for challenge state; empty runs the store in memory"`
	DbType   string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	HTTPPort uint32 `mapstructure:"HTTP_PORT" envDefault:"7002" envInfo:"HTTP server port"`
	LogLevel uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`

	VaultAddress     string `mapstructure:"VAULT_ADDRESS" envDefault:"" envInfo:"Shared custodial address receiving all donations"`
	VaultScript      string `mapstructure:"VAULT_SCRIPT" envDefault:"" envInfo:"Vault locking script hex; resolved via the indexer when empty"`
	VaultSigningKey  string `mapstructure:"VAULT_SIGNING_KEY" envDefault:"" envInfo:"Optional vault signing credential; absence degrades to manual payout instructions"`
	RecipientAddress string `mapstructure:"RECIPIENT_ADDRESS" envDefault:"" envInfo:"Default payout destination for new challenges"`
	Network          string `mapstructure:"NETWORK" envDefault:"testnet-10" envInfo:"Network identifier (mainnet, testnet-10, devnet, simnet)"`
	NetworkRPC       string `mapstructure:"NETWORK_RPC" envDefault:"https://api.kaspa.org" envInfo:"Read-only transaction index base URL"`

	PublicURL     string `mapstructure:"PUBLIC_URL" envDefault:"http://localhost:7002" envInfo:"Public host URL used in donation-page links and QR codes"`
	SweepInterval uint32 `mapstructure:"SWEEP_INTERVAL" envDefault:"60" envInfo:"Expiry sweep interval in seconds"`
	AdminSecret   string `mapstructure:"ADMIN_SECRET" envDefault:"" envInfo:"HS256 secret guarding admin routes; empty leaves them open"`
	SeedFile      string `mapstructure:"SEED_FILE" envDefault:"" envInfo:"Optional JSON file of challenges to create at startup"`

	DisableTelemetry bool `mapstructure:"DISABLE_TELEMETRY" envDefault:"false" envInfo:"Disable telemetry"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("VAULTD")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.validateDb(); err != nil {
		return nil, err
	}

	return &config, nil
}

// IsTestNetwork reports whether the configured network is explicitly
// test-labeled. The relaxed-trust verification path refuses to operate
// anywhere else.
func (c *Config) IsTestNetwork() bool {
	network := strings.ToLower(c.Network)
	return strings.HasPrefix(network, "testnet") ||
		strings.HasPrefix(network, "devnet") ||
		strings.HasPrefix(network, "simnet")
}

// MissingSettings names the optional settings that are unset, so the caller
// can warn and degrade instead of crashing.
func (c *Config) MissingSettings() []string {
	var missing []string
	if c.VaultAddress == "" {
		missing = append(missing, VaultAddress)
	}
	if c.RecipientAddress == "" {
		missing = append(missing, RecipientAddress)
	}
	if c.VaultSigningKey == "" {
		missing = append(missing, VaultSigningKey)
	}
	if c.AdminSecret == "" {
		missing = append(missing, AdminSecret)
	}
	return missing
}

func (c *Config) validateDb() error {
	supportedDbType := map[string]struct{}{
		badgerDb: {},
	}
	if _, ok := supportedDbType[c.DbType]; !ok {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}
	return nil
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		if def := f.Tag.Get("envDefault"); def != "" {
			v.SetDefault(key, def)
		}
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}
