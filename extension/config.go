package extension

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers the extension can build on its own.
const (
	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
)

// Config holds the Custody extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.custody" or "custody" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Owner is the principal credited with failed transfers that cannot be
	// returned to their sender. Required.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// TokenID identifies the token contract sent with every transfer.
	TokenID string `json:"token_id" mapstructure:"token_id" yaml:"token_id"`

	// StorageByteCost is the per-byte storage price in base units, as a
	// decimal string (default: 10^19).
	StorageByteCost string `json:"storage_byte_cost" mapstructure:"storage_byte_cost" yaml:"storage_byte_cost"`

	// TokenPrice is the native price of one token for purchases, as a
	// decimal string (default: 10^24).
	TokenPrice string `json:"token_price" mapstructure:"token_price" yaml:"token_price"`

	// DispatchBufferSize is the capacity of the dispatch queue (default: 1024).
	DispatchBufferSize int `json:"dispatch_buffer_size" mapstructure:"dispatch_buffer_size" yaml:"dispatch_buffer_size"`

	// DispatchWorkers is the number of goroutines handing settlements to
	// the transferer (default: 4).
	DispatchWorkers int `json:"dispatch_workers" mapstructure:"dispatch_workers" yaml:"dispatch_workers"`

	// SweepInterval is how often pending settlements that missed the queue
	// are dispatched (default: 30s).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// AccountCacheSize is the number of account records kept in the LRU
	// cache in front of the store. Zero disables the cache.
	AccountCacheSize int `json:"account_cache_size" mapstructure:"account_cache_size" yaml:"account_cache_size"`

	// StoreDriver selects the store built when none is set with WithStore:
	// "memory" (default) or "leveldb".
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// LevelDBPath is the database directory for the leveldb driver.
	LevelDBPath string `json:"leveldb_path" mapstructure:"leveldb_path" yaml:"leveldb_path"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StorageByteCost:    "10000000000000000000",
		TokenPrice:         "1000000000000000000000000",
		DispatchBufferSize: 1024,
		DispatchWorkers:    4,
		SweepInterval:      30 * time.Second,
		StoreDriver:        StoreMemory,
	}
}

// LoadConfigFile reads a standalone YAML file. The settings may sit at the
// top level or under a "custody" key.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("custody: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration. See LoadConfigFile.
func ParseConfig(data []byte) (Config, error) {
	var wrapped struct {
		Custody *Config `yaml:"custody"`
	}
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return Config{}, fmt.Errorf("custody: parse config: %w", err)
	}
	if wrapped.Custody != nil {
		return *wrapped.Custody, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("custody: parse config: %w", err)
	}
	return cfg, nil
}
