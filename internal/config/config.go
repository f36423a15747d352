// Package config loads the node configuration from file and environment.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/crosslane/crosslane/internal/domain"
)

// Config holds all configuration for one domain node.
type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	DomainID uint64        `mapstructure:"domain_id"`
	Ledger   LedgerConfig  `mapstructure:"ledger"`
	Store    StoreConfig   `mapstructure:"store"`
	Network  NetworkConfig `mapstructure:"network"`
}

type LedgerConfig struct {
	// Address is the ledger's own address, identical on every domain. A
	// claim is only honored if its receipt was emitted by this address.
	Address string `mapstructure:"address"`
	// Operator is the node operator's address, credited with claim-cost
	// reimbursements for claims this node submits.
	Operator string `mapstructure:"operator"`
	// BaseFee is the per-unit execution price on this domain.
	BaseFee uint64 `mapstructure:"base_fee"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type NetworkConfig struct {
	ListenAddr string   `mapstructure:"listen_addr"`
	Peers      []string `mapstructure:"peers"`
}

// Load reads configuration from ./config.yaml (or the given path) and the
// environment, with CROSSLANE_ prefixed variables taking precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetDefault("log_level", "info")
	v.SetDefault("ledger.base_fee", 1)
	v.SetDefault("store.path", "crosslane.db")
	v.SetDefault("network.listen_addr", "127.0.0.1:9650")

	v.SetEnvPrefix("CROSSLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LedgerAddress parses the configured ledger address.
func (c *Config) LedgerAddress() (domain.Address, error) {
	return parseAddress(c.Ledger.Address)
}

// OperatorAddress parses the configured operator address.
func (c *Config) OperatorAddress() (domain.Address, error) {
	return parseAddress(c.Ledger.Operator)
}

func parseAddress(s string) (domain.Address, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return domain.Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return domain.AddressFromBytes(raw)
}
