// Package config loads indexer configuration from the environment,
// mirroring the env-var surface the reference implementation reads via
// python-dotenv.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// NetworkType is the Bitcoin network an indexer is tracking.
type NetworkType string

const (
	Mainnet  NetworkType = "mainnet"
	Testnet  NetworkType = "testnet"
	Testnet4 NetworkType = "testnet4"
	Signet   NetworkType = "signet"
	Regtest  NetworkType = "regtest"
)

func (n NetworkType) valid() bool {
	switch n {
	case Mainnet, Testnet, Testnet4, Signet, Regtest:
		return true
	default:
		return false
	}
}

// FirstInscriptionHeight is the first height at which the upstream ord
// indexer begins enumerating inscriptions, per network.
var FirstInscriptionHeight = map[NetworkType]int64{
	Mainnet:  767430,
	Testnet:  2413343,
	Testnet4: 0,
	Signet:   112402,
	Regtest:  0,
}

// FirstBRC20Height is the first height BRC-20 activity is recognized.
// Only mainnet differs from the network's first inscription height.
var FirstBRC20Height = map[NetworkType]int64{
	Mainnet:  779832,
	Testnet:  FirstInscriptionHeight[Testnet],
	Testnet4: FirstInscriptionHeight[Testnet4],
	Signet:   FirstInscriptionHeight[Signet],
	Regtest:  FirstInscriptionHeight[Regtest],
}

// SelfMintEnableHeight is the mainnet height at which 5-byte self-mint
// tickers become legal. Self-mint is not recognized on other networks.
const SelfMintEnableHeight = 837090

// EventHashVersion identifies the canonicalization scheme emitted in
// reports; see internal/brc20's event-string formatter.
const EventHashVersion = 2

// IndexerVersion is reported alongside every digest (§4.7) and recorded in
// each protocol's indexer_version marker row.
const IndexerVersion = "0.5.0"

// ReorgWindow is how many recent local anchors are compared against
// upstream during reorg detection.
const ReorgWindow = 10

// DBConfig describes a Postgres connection.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders a libpq-style connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ReportConfig controls the reporter (§4.7).
type ReportConfig struct {
	Enabled bool   `mapstructure:"to_indexer"`
	URL     string `mapstructure:"url"`
	Retries int    `mapstructure:"retries"`
	Name    string `mapstructure:"name"`
}

// Config is the full process configuration, bound from environment
// variables: DB_* (own store), DB_METAPROTOCOL_* (upstream store),
// NETWORK_TYPE, REPORT_*, CREATE_EXTRA_TABLES.
type Config struct {
	DB             DBConfig     `mapstructure:"db"`
	UpstreamDB     DBConfig     `mapstructure:"db_metaprotocol"`
	Network        NetworkType  `mapstructure:"network_type"`
	Report         ReportConfig `mapstructure:"report"`
	CreateExtras   bool         `mapstructure:"create_extra_tables"`
	OrdRPCURL      string       `mapstructure:"ord_rpc_url"`
}

// Load reads an optional .env file (ignored if absent) then binds Config
// from the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	bind := func(key string) {
		_ = v.BindEnv(key)
	}
	bind("db.host")
	bind("db.port")
	bind("db.user")
	bind("db.password")
	bind("db.database")
	bind("db.sslmode")
	bind("db_metaprotocol.host")
	bind("db_metaprotocol.port")
	bind("db_metaprotocol.user")
	bind("db_metaprotocol.password")
	bind("db_metaprotocol.database")
	bind("db_metaprotocol.sslmode")
	bind("network_type")
	bind("report.to_indexer")
	bind("report.url")
	bind("report.retries")
	bind("report.name")
	bind("create_extra_tables")
	bind("ord_rpc_url")

	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db_metaprotocol.port", 5432)
	v.SetDefault("db_metaprotocol.sslmode", "disable")
	v.SetDefault("report.retries", 10)
	v.SetDefault("network_type", string(Mainnet))

	remap := map[string]string{
		"db.host":                       "DB_HOST",
		"db.port":                       "DB_PORT",
		"db.user":                       "DB_USER",
		"db.password":                   "DB_PASSWD",
		"db.database":                   "DB_DATABASE",
		"db.sslmode":                    "DB_SSLMODE",
		"db_metaprotocol.host":          "DB_METAPROTOCOL_HOST",
		"db_metaprotocol.port":          "DB_METAPROTOCOL_PORT",
		"db_metaprotocol.user":          "DB_METAPROTOCOL_USER",
		"db_metaprotocol.password":      "DB_METAPROTOCOL_PASSWD",
		"db_metaprotocol.database":      "DB_METAPROTOCOL_DATABASE",
		"db_metaprotocol.sslmode":       "DB_METAPROTOCOL_SSLMODE",
		"network_type":                  "NETWORK_TYPE",
		"report.to_indexer":             "REPORT_TO_INDEXER",
		"report.url":                    "REPORT_URL",
		"report.retries":                "REPORT_RETRIES",
		"report.name":                   "REPORT_NAME",
		"create_extra_tables":           "CREATE_EXTRA_TABLES",
		"ord_rpc_url":                   "ORD_RPC_URL",
	}
	for key, env := range remap {
		_ = v.BindEnv(key, env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if !cfg.Network.valid() {
		return nil, fmt.Errorf("unrecognized NETWORK_TYPE %q", cfg.Network)
	}
	if cfg.Network == Regtest {
		cfg.Report.Enabled = false
	}

	return &cfg, nil
}
