// Package keeper implements the supervising control loop that keeps
// named keyed stores alive for the lifetime of an application. For each
// store it maintains a pair of supervised workers, one owning the store
// and one registered as its heir, so that the store survives any single
// worker's termination. Callers read and write store data at any time
// without reference to which worker currently owns it.
package keeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heirloom-kv/heirloom/process"
	"github.com/heirloom-kv/heirloom/resource"
	"github.com/heirloom-kv/heirloom/storage/kv"
	"github.com/heirloom-kv/heirloom/storage/kv/plugins"
	"github.com/heirloom-kv/heirloom/utils/log"
	"github.com/heirloom-kv/heirloom/worker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config contains configuration for a Keeper
type Config struct {
	// Logger defaults to the global zap logger
	Logger *zap.Logger
	// Registerer receives the keeper's metrics.
	// Metrics stay unregistered when nil.
	Registerer prometheus.Registerer
}

// StoreOptions selects and configures the storage driver
// backing a store
type StoreOptions struct {
	// Driver names the storage driver. Defaults to the
	// memory driver.
	Driver string
	// DriverOptions is passed through to the driver
	DriverOptions kv.PluginOptions
}

// StoreConfig configures the workers managing a store
type StoreConfig struct {
	// Monitor is the heir liveness-check interval. Zero means
	// worker.DefaultMonitorInterval; worker.MonitorDisabled
	// turns the check off.
	Monitor time.Duration
	// Quiet suppresses the workers' diagnostic logging
	Quiet bool
}

// Keeper is the supervising control loop
type Keeper struct {
	logger        *zap.Logger
	manager       *resource.Manager
	registry      *registry
	metrics       *Metrics
	workerMetrics *worker.Metrics
	guardian      *process.Process

	// createMu is the single mutual-exclusion point around the
	// check-and-create sequence, so concurrent Create calls for
	// the same name cannot both succeed
	createMu sync.Mutex
}

// New creates a Keeper. The keeper spawns a long-lived guardian
// process that holds each store during the brief window between
// creation and the initial ownership gift.
func New(config Config) *Keeper {
	logger := config.Logger

	if logger == nil {
		logger = zap.L()
	}

	return &Keeper{
		logger:        logger,
		manager:       resource.NewManager(resource.ManagerConfig{Logger: logger}),
		registry:      newRegistry(),
		metrics:       NewMetrics(config.Registerer),
		workerMetrics: worker.NewMetrics(config.Registerer),
		guardian:      process.Spawn(process.Config{Handler: guardianHandler{}}),
	}
}

// Create creates a store named name and starts a supervision unit of
// exactly two workers keeping it alive. It returns the identity of the
// store's initial owner along with the store's handle.
//
// Create is idempotent per name: if a store with this name already
// exists the call fails with an AlreadyStartedError carrying the
// existing store's owner and handle, and no second store is created.
func (keeper *Keeper) Create(ctx context.Context, name string, storeOptions StoreOptions, config StoreConfig) (process.ID, resource.Handle, error) {
	logger := log.WithContext(ctx, keeper.logger)

	plugin, err := validateCreate(name, storeOptions, config)

	if err != nil {
		return process.Undefined, resource.Handle(""), err
	}

	keeper.createMu.Lock()
	defer keeper.createMu.Unlock()

	if existing := keeper.registry.lookup(name); existing != nil {
		return process.Undefined, resource.Handle(""), &AlreadyStartedError{
			Name:   name,
			Owner:  keeper.manager.CurrentOwner(existing.handle),
			Handle: existing.handle,
		}
	}

	store, err := plugin.NewStore(storeOptions.DriverOptions)

	if err != nil {
		return process.Undefined, resource.Handle(""), fmt.Errorf("could not create store %q: %s", name, err.Error())
	}

	handle, err := keeper.manager.CreateStore(name, store, keeper.guardian)

	if err != nil {
		store.Purge()

		return process.Undefined, resource.Handle(""), fmt.Errorf("could not register store %q: %s", name, err.Error())
	}

	u := &unit{
		name:    name,
		handle:  handle,
		manager: keeper.manager,
		logger:  logger,
		workerConfig: worker.Config{
			Handle:  handle,
			Manager: keeper.manager,
			Creator: keeper.guardian.ID(),
			Monitor: config.Monitor,
			Quiet:   config.Quiet,
			Logger:  logger,
			Metrics: keeper.workerMetrics,
		},
		onDefunct: keeper.unitDefunct,
	}

	keeper.registry.insert(u)
	u.start()

	keeper.metrics.StoresCreated.Inc()
	keeper.metrics.LiveStores.Inc()

	return keeper.manager.CurrentOwner(handle), handle, nil
}

// Owner returns the identity of the store's current owner, or
// process.Undefined if the store doesn't exist
func (keeper *Keeper) Owner(handle resource.Handle) process.ID {
	return keeper.manager.CurrentOwner(handle)
}

// Heir returns the identity of the store's registered heir, or
// process.Undefined if no heir is registered
func (keeper *Keeper) Heir(handle resource.Handle) process.ID {
	return keeper.manager.CurrentHeir(handle)
}

// Store returns the store's keyed contents for reading and writing
func (keeper *Keeper) Store(handle resource.Handle) (kv.Store, bool) {
	return keeper.manager.Data(handle)
}

// Stores lists the names of live stores in ascending order
func (keeper *Keeper) Stores() []string {
	return keeper.registry.names()
}

// Stop terminates the supervision unit for the handle along with its
// workers and the store itself. Stopping an already-stopped store is
// a no-op, not an error.
func (keeper *Keeper) Stop(handle resource.Handle) error {
	u := keeper.registry.take(handle)

	if u == nil {
		return nil
	}

	u.stop()

	keeper.metrics.StoresStopped.Inc()
	keeper.metrics.LiveStores.Dec()

	return nil
}

// Close stops every live store and the keeper's guardian process
func (keeper *Keeper) Close() error {
	for _, u := range keeper.registry.units() {
		keeper.Stop(u.handle)
	}

	keeper.guardian.Stop(process.ReasonShutdown)

	return nil
}

// unitDefunct runs when a unit winds itself down because its store
// disappeared out from under it
func (keeper *Keeper) unitDefunct(u *unit) {
	if keeper.registry.take(u.handle) == nil {
		return
	}

	keeper.logger.Info("store abandoned", zap.String("name", u.name), zap.String("store", string(u.handle)))
	keeper.metrics.StoresStopped.Inc()
	keeper.metrics.LiveStores.Dec()
}

func validateCreate(name string, storeOptions StoreOptions, config StoreConfig) (kv.Plugin, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: name %q must be a non-empty identifier", ErrInvalidArguments, name)
	}

	if config.Monitor < 0 && config.Monitor != worker.MonitorDisabled {
		return nil, fmt.Errorf("%w: monitor interval %s is negative", ErrInvalidArguments, config.Monitor)
	}

	driver := storeOptions.Driver

	if driver == "" {
		driver = kv.MemoryDriverName
	}

	plugin := plugins.Plugin(driver)

	if plugin == nil {
		return nil, fmt.Errorf("%w: unknown storage driver %q", ErrInvalidArguments, driver)
	}

	return plugin, nil
}

// validName reports whether name is an identifier: one or more
// letters, digits, underscores or dashes
func validName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}

	return true
}

type guardianHandler struct {
}

func (guardianHandler) Init(self *process.Process) {
}

func (guardianHandler) Receive(message interface{}) {
}

func (guardianHandler) Terminate(reason process.ExitReason) {
}
