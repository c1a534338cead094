package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger transport selection.
const (
	LedgerModeMemory  = "memory"
	LedgerModeLevelDB = "leveldb"
	LedgerModeFabric  = "fabric"
)

// Config carries all runtime settings. Values come from the environment
// (MEDLEDGER_ prefix) with an optional .env file for local development.
type Config struct {
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`

	// Postgres DSN; when empty the service runs on in-memory stores.
	PGDSN string `mapstructure:"pg_dsn"`

	AuthSecret string        `mapstructure:"auth_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`

	// 64 hex chars (32 bytes) enabling AES-256-GCM at rest. Empty disables
	// encryption, which is only acceptable for local development.
	EHREncryptionKey string `mapstructure:"ehr_encryption_key"`

	LedgerMode string `mapstructure:"ledger_mode"`
	LedgerPath string `mapstructure:"ledger_path"`

	FabricMSPID        string `mapstructure:"fabric_msp_id"`
	FabricCertPath     string `mapstructure:"fabric_cert_path"`
	FabricKeyDir       string `mapstructure:"fabric_key_dir"`
	FabricTLSCertPath  string `mapstructure:"fabric_tls_cert_path"`
	FabricPeerEndpoint string `mapstructure:"fabric_peer_endpoint"`
	FabricGatewayPeer  string `mapstructure:"fabric_gateway_peer"`
	FabricChannel      string `mapstructure:"fabric_channel"`
	FabricChaincode    string `mapstructure:"fabric_chaincode"`

	RateLimitRPS   int    `mapstructure:"rate_limit_rps"`
	RateLimitBurst int    `mapstructure:"rate_limit_burst"`
	CORSOrigins    string `mapstructure:"cors_origins"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	setDefaults(v)
	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("token_ttl", 15*time.Minute)
	v.SetDefault("ledger_mode", LedgerModeMemory)
	v.SetDefault("ledger_path", "data/ledger")
	v.SetDefault("fabric_channel", "mychannel")
	v.SetDefault("fabric_chaincode", "ehr")
	v.SetDefault("rate_limit_rps", 50)
	v.SetDefault("rate_limit_burst", 100)
	v.SetDefault("cors_origins", "*")
}

func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"env", "port", "pg_dsn", "auth_secret", "token_ttl",
		"ehr_encryption_key", "ledger_mode", "ledger_path",
		"fabric_msp_id", "fabric_cert_path", "fabric_key_dir",
		"fabric_tls_cert_path", "fabric_peer_endpoint",
		"fabric_gateway_peer", "fabric_channel", "fabric_chaincode",
		"rate_limit_rps", "rate_limit_burst", "cors_origins",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks cross-field constraints before the service starts.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.LedgerMode {
	case LedgerModeMemory:
	case LedgerModeLevelDB:
		if c.LedgerPath == "" {
			return fmt.Errorf("ledger_path is required for leveldb ledger mode")
		}
	case LedgerModeFabric:
		for name, val := range map[string]string{
			"fabric_msp_id":        c.FabricMSPID,
			"fabric_cert_path":     c.FabricCertPath,
			"fabric_key_dir":       c.FabricKeyDir,
			"fabric_tls_cert_path": c.FabricTLSCertPath,
			"fabric_peer_endpoint": c.FabricPeerEndpoint,
			"fabric_gateway_peer":  c.FabricGatewayPeer,
		} {
			if val == "" {
				return fmt.Errorf("%s is required for fabric ledger mode", name)
			}
		}
	default:
		return fmt.Errorf("unknown ledger mode %q", c.LedgerMode)
	}
	if c.EHREncryptionKey != "" {
		raw, err := hex.DecodeString(c.EHREncryptionKey)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("ehr_encryption_key must be 64 hex characters (32 bytes)")
		}
	}
	if c.IsProduction() {
		if c.AuthSecret == "" {
			return fmt.Errorf("auth_secret is required in production")
		}
		if c.EHREncryptionKey == "" {
			return fmt.Errorf("ehr_encryption_key is required in production")
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	return nil
}

// EncryptionKey returns the decoded AES key, or nil when encryption is off.
func (c *Config) EncryptionKey() []byte {
	if c.EHREncryptionKey == "" {
		return nil
	}
	raw, err := hex.DecodeString(c.EHREncryptionKey)
	if err != nil {
		return nil
	}
	return raw
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
