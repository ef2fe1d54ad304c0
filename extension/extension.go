// Package extension provides the Forge extension adapter for Custody.
//
// It implements the forge.Extension interface to integrate Custody
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions,
// via YAML configuration files under "extensions.custody" or "custody"
// keys, or from a standalone file with WithConfigFile.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/store/cache"
	"github.com/xraph/custody/store/leveldb"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "custody"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Token custody ledger with asynchronous settlement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Custody as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	configFile  string
	engine      *custody.Ledger
	store       store.Store
	custodyOpts []custody.Option
}

// New creates a new Custody Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *custody.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the custody engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*custody.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("custody: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("custody: store not initialized")
	}
	return e.store.Ping(ctx)
}

// build opens the store and constructs the engine from the resolved config.
func (e *Extension) build() error {
	if e.store == nil {
		s, err := openStore(e.config)
		if err != nil {
			return err
		}
		e.store = s
	}

	if e.config.AccountCacheSize > 0 {
		cached, err := cache.New(e.store, e.config.AccountCacheSize)
		if err != nil {
			return err
		}
		e.store = cached
	}

	opts, err := e.buildCustodyOpts()
	if err != nil {
		return err
	}

	eng, err := custody.New(e.store, opts...)
	if err != nil {
		return err
	}
	e.engine = eng
	return nil
}

func openStore(cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "", StoreMemory:
		return memory.New(), nil
	case StoreLevelDB:
		if cfg.LevelDBPath == "" {
			return nil, errors.New("custody: leveldb_path is required for the leveldb store")
		}
		s, err := leveldb.New(cfg.LevelDBPath, leveldb.Options{})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("custody: unknown store driver %q", cfg.StoreDriver)
	}
}

// buildCustodyOpts constructs custody.Option values from the resolved config.
func (e *Extension) buildCustodyOpts() ([]custody.Option, error) {
	opts := make([]custody.Option, 0, len(e.custodyOpts)+6)

	opts = append(opts,
		custody.WithOwner(account.Principal(e.config.Owner)),
		custody.WithTokenID(e.config.TokenID),
		custody.WithDispatchConfig(e.config.DispatchBufferSize, e.config.DispatchWorkers, e.config.SweepInterval),
	)

	if e.config.StorageByteCost != "" {
		cost, err := types.ParseAmount(e.config.StorageByteCost)
		if err != nil {
			return nil, fmt.Errorf("custody: storage_byte_cost: %w", err)
		}
		opts = append(opts, custody.WithStoragePricer(custody.FixedStoragePrice(cost)))
	}

	if e.config.TokenPrice != "" {
		price, err := types.ParseAmount(e.config.TokenPrice)
		if err != nil {
			return nil, fmt.Errorf("custody: token_price: %w", err)
		}
		opts = append(opts, custody.WithTokenPrice(price))
	}

	if e.config.DisableMigrate {
		opts = append(opts, custody.WithoutMigrate())
	}

	// Append any pass-through custody options.
	opts = append(opts, e.custodyOpts...)

	return opts, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded && e.configFile != "" {
		cfg, err := LoadConfigFile(e.configFile)
		if err != nil {
			return err
		}
		fileConfig, configLoaded = cfg, true
	}

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("custody: configuration is required but not found in config files; " +
				"ensure 'extensions.custody' or 'custody' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("custody: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("owner", e.config.Owner),
		forge.F("token_id", e.config.TokenID),
		forge.F("dispatch_workers", e.config.DispatchWorkers),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("store_driver", e.config.StoreDriver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.custody" first (namespaced pattern).
	if cm.IsSet("extensions.custody") {
		if err := cm.Bind("extensions.custody", &cfg); err == nil {
			e.Logger().Debug("custody: loaded config from file",
				forge.F("key", "extensions.custody"),
			)
			return cfg, true
		}
		e.Logger().Warn("custody: failed to bind extensions.custody config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "custody" key.
	if cm.IsSet("custody") {
		if err := cm.Bind("custody", &cfg); err == nil {
			e.Logger().Debug("custody: loaded config from file",
				forge.F("key", "custody"),
			)
			return cfg, true
		}
		e.Logger().Warn("custody: failed to bind custody config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.StorageByteCost == "" {
		cfg.StorageByteCost = defaults.StorageByteCost
	}
	if cfg.TokenPrice == "" {
		cfg.TokenPrice = defaults.TokenPrice
	}
	if cfg.DispatchBufferSize == 0 {
		cfg.DispatchBufferSize = defaults.DispatchBufferSize
	}
	if cfg.DispatchWorkers == 0 {
		cfg.DispatchWorkers = defaults.DispatchWorkers
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Owner == "" {
		yamlConfig.Owner = programmaticConfig.Owner
	}
	if yamlConfig.TokenID == "" {
		yamlConfig.TokenID = programmaticConfig.TokenID
	}
	if yamlConfig.StorageByteCost == "" {
		yamlConfig.StorageByteCost = programmaticConfig.StorageByteCost
	}
	if yamlConfig.TokenPrice == "" {
		yamlConfig.TokenPrice = programmaticConfig.TokenPrice
	}
	if yamlConfig.StoreDriver == "" {
		yamlConfig.StoreDriver = programmaticConfig.StoreDriver
	}
	if yamlConfig.LevelDBPath == "" {
		yamlConfig.LevelDBPath = programmaticConfig.LevelDBPath
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.DispatchBufferSize == 0 {
		yamlConfig.DispatchBufferSize = programmaticConfig.DispatchBufferSize
	}
	if yamlConfig.DispatchWorkers == 0 {
		yamlConfig.DispatchWorkers = programmaticConfig.DispatchWorkers
	}
	if yamlConfig.SweepInterval == 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.AccountCacheSize == 0 {
		yamlConfig.AccountCacheSize = programmaticConfig.AccountCacheSize
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
