package config

import "fmt"

const (
	Datadir          = "DATADIR"
	DbType           = "DB_TYPE"
	HTTPPort         = "HTTP_PORT"
	LogLevel         = "LOG_LEVEL"
	VaultAddress     = "VAULT_ADDRESS"
	VaultScript      = "VAULT_SCRIPT"
	VaultSigningKey  = "VAULT_SIGNING_KEY"
	RecipientAddress = "RECIPIENT_ADDRESS"
	Network          = "NETWORK"
	NetworkRPC       = "NETWORK_RPC"
	PublicURL        = "PUBLIC_URL"
	SweepInterval    = "SWEEP_INTERVAL"
	AdminSecret      = "ADMIN_SECRET"
	SeedFile         = "SEED_FILE"
	DisableTelemetry = "DISABLE_TELEMETRY"
)

type EnvVar struct {
	Name        string // short name under the VAULTD_ prefix (e.g., "DATADIR")
	FullName    string // e.g., "VAULTD_DATADIR"
	Type        string // human-readable type
	Default     string // default value as a string ("" if none)
	Description string // one-liner for docs
}

func EnvSpecs() []EnvVar {
	const P = "VAULTD_"

	return []EnvVar{
		{
			Name:        Datadir,
			FullName:    P + Datadir,
			Type:        "string (path)",
			Default:     "",
			Description: "Data directory for challenge state; empty runs the store in memory",
		},
		{
			Name:        DbType,
			FullName:    P + DbType,
			Type:        "string",
			Default:     "badger",
			Description: "Database backend: badger",
		},
		{
			Name:        HTTPPort,
			FullName:    P + HTTPPort,
			Type:        "uint32 (port)",
			Default:     fmt.Sprintf("%d", 7002),
			Description: "HTTP server port",
		},
		{
			Name:        LogLevel,
			FullName:    P + LogLevel,
			Type:        "uint32 (0–6)",
			Default:     "4",
			Description: "Log verbosity (higher = more verbose)",
		},
		{
			Name:        VaultAddress,
			FullName:    P + VaultAddress,
			Type:        "string (address)",
			Default:     "",
			Description: "Shared custodial address receiving all donations",
		},
		{
			Name:        VaultScript,
			FullName:    P + VaultScript,
			Type:        "string (hex)",
			Default:     "",
			Description: "Vault locking script hex; resolved via the indexer when empty",
		},
		{
			Name:        VaultSigningKey,
			FullName:    P + VaultSigningKey,
			Type:        "string",
			Default:     "",
			Description: "Optional vault signing credential; absence degrades to manual payout instructions",
		},
		{
			Name:        RecipientAddress,
			FullName:    P + RecipientAddress,
			Type:        "string (address)",
			Default:     "",
			Description: "Default payout destination for new challenges",
		},
		{
			Name:        Network,
			FullName:    P + Network,
			Type:        "string",
			Default:     "testnet-10",
			Description: "Network identifier (mainnet, testnet-10, devnet, simnet)",
		},
		{
			Name:        NetworkRPC,
			FullName:    P + NetworkRPC,
			Type:        "string (URL)",
			Default:     "https://api.kaspa.org",
			Description: "Read-only transaction index base URL",
		},
		{
			Name:        PublicURL,
			FullName:    P + PublicURL,
			Type:        "string (URL)",
			Default:     "http://localhost:7002",
			Description: "Public host URL used in donation-page links and QR codes",
		},
		{
			Name:        SweepInterval,
			FullName:    P + SweepInterval,
			Type:        "uint32 (seconds)",
			Default:     "60",
			Description: "Expiry sweep interval in seconds",
		},
		{
			Name:        AdminSecret,
			FullName:    P + AdminSecret,
			Type:        "string",
			Default:     "",
			Description: "HS256 secret guarding admin routes; empty leaves them open",
		},
		{
			Name:        SeedFile,
			FullName:    P + SeedFile,
			Type:        "string (path)",
			Default:     "",
			Description: "Optional JSON file of challenges to create at startup",
		},
		{
			Name:        DisableTelemetry,
			FullName:    P + DisableTelemetry,
			Type:        "bool",
			Default:     "false",
			Description: "Disable telemetry",
		},
	}
}
