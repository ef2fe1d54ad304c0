package extension

import (
	"time"

	"github.com/xraph/custody"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/transfer"
)

// Option configures the Custody Forge extension.
type Option func(*Extension)

// WithStore sets the store for the custody engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithCustodyOption passes a custody.Option through to the underlying engine.
func WithCustodyOption(opt custody.Option) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, opt)
	}
}

// WithPlugin registers a custody plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithPlugin(p))
	}
}

// WithTransferer sets the outbound transfer boundary.
func WithTransferer(t transfer.Transferer) Option {
	return func(e *Extension) {
		e.custodyOpts = append(e.custodyOpts, custody.WithTransferer(t))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithConfigFile loads a standalone YAML file at Register time. Settings
// from the application config still take precedence.
func WithConfigFile(path string) Option {
	return func(e *Extension) { e.configFile = path }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithOwner sets the escrow principal.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithTokenID sets the token contract identifier.
func WithTokenID(tokenID string) Option {
	return func(e *Extension) { e.config.TokenID = tokenID }
}

// WithDispatchWorkers sets the number of dispatch goroutines.
func WithDispatchWorkers(n int) Option {
	return func(e *Extension) { e.config.DispatchWorkers = n }
}

// WithSweepInterval sets how often pending settlements are swept.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithAccountCacheSize sets the size of the account LRU cache.
func WithAccountCacheSize(n int) Option {
	return func(e *Extension) { e.config.AccountCacheSize = n }
}

// WithLevelDB selects the embedded leveldb store at path.
func WithLevelDB(path string) Option {
	return func(e *Extension) {
		e.config.StoreDriver = StoreLevelDB
		e.config.LevelDBPath = path
	}
}
