// Package worker implements the pair of cooperating roles that keep a
// managed store alive: the owner, whose termination hands the store to
// the heir, and the heir, which waits to be promoted. A worker holds at
// most one of the two roles for its store at any time; the role is a
// runtime position, not a static tag. Role changes are driven entirely
// by messages, so a worker is never stalled by another's slowness.
package worker

import (
	"time"

	"github.com/heirloom-kv/heirloom/process"
	"github.com/heirloom-kv/heirloom/resource"
	"go.uber.org/zap"
)

const (
	// DefaultMonitorInterval is how often an owner checks its heir's
	// liveness when no interval is configured. Infrequent on purpose:
	// the check is a backstop against lost termination notices, not
	// the primary replacement path.
	DefaultMonitorInterval = time.Minute
	// MonitorDisabled turns the heir liveness check off
	MonitorDisabled time.Duration = -1
)

// HeirRequest asks a store's current owner to register
// Candidate as the store's heir
type HeirRequest struct {
	Handle    resource.Handle
	Candidate *process.Process
}

// HeirDown tells a store's owner that its registered heir
// has terminated
type HeirDown struct {
	Handle resource.Handle
}

// CheckHeir is the owner's self-scheduled heir liveness probe
type CheckHeir struct {
	Handle resource.Handle
}

// Shutdown asks a worker to exit. A safe shutdown of an owner
// hands the store to the heir first so nothing is lost; an unsafe
// one exits immediately and relies on the resource manager's
// transfer mechanic.
type Shutdown struct {
	Safe bool
}

// SiblingFunc locates the worker's counterpart for the same store,
// starting a replacement if the counterpart is dead. It returns nil
// when no counterpart can be provided, for example because the
// supervision unit is shutting down.
type SiblingFunc func() *process.Process

// Config contains configuration for a Worker.
// It is immutable after the worker starts.
type Config struct {
	// Handle of the store this worker manages. Required.
	Handle resource.Handle
	// Manager is the resource manager tracking the store. Required.
	Manager *resource.Manager
	// Creator identifies the process that created the store. A worker
	// that starts while the creator still owns the store is part of the
	// initial bootstrap and must wait for its role instead of requesting
	// one, so that two concurrently starting workers cannot race to
	// become heir.
	Creator process.ID
	// Sibling locates or respawns this worker's counterpart. Required.
	Sibling SiblingFunc
	// Monitor is the heir liveness-check interval. Zero means
	// DefaultMonitorInterval; MonitorDisabled turns the check off.
	Monitor time.Duration
	// Quiet suppresses diagnostic logging
	Quiet bool
	// Logger defaults to the global zap logger
	Logger *zap.Logger
	// Metrics defaults to unregistered metrics
	Metrics *Metrics
}

// Worker processes the ownership-transfer protocol for one store.
// All fields below config are touched only from the worker's own
// process goroutine.
type Worker struct {
	config  Config
	logger  *zap.Logger
	metrics *Metrics

	self    *process.Process
	isOwner bool
	heir    process.ID
	monitor *time.Timer
}

// Start spawns a worker process for the configured store. If some
// process other than the creator already owns the store, the new
// worker immediately asks that owner to register it as heir; this is
// the path a replacement worker takes after its predecessor died.
// Otherwise the worker waits for a role to arrive.
func Start(config Config) *process.Process {
	logger := config.Logger

	if config.Quiet {
		logger = zap.NewNop()
	} else if logger == nil {
		logger = zap.L()
	}

	worker := &Worker{
		config:  config,
		logger:  logger.With(zap.String("store", string(config.Handle))),
		metrics: config.Metrics,
	}

	if worker.metrics == nil {
		worker.metrics = NewMetrics(nil)
	}

	p := process.Spawn(process.Config{Handler: worker})

	owner := config.Manager.CurrentOwner(config.Handle)

	if owner != process.Undefined && owner != config.Creator {
		config.Manager.SendOwner(config.Handle, HeirRequest{Handle: config.Handle, Candidate: p})
	}

	return p
}

// Init implements process.Handler.Init
func (worker *Worker) Init(self *process.Process) {
	worker.self = self
	worker.logger = worker.logger.With(zap.String("worker", string(self.ID())))
}

// Receive implements process.Handler.Receive. Messages that don't
// belong to the protocol, or that arrive in the wrong role, are
// ignored without error.
func (worker *Worker) Receive(message interface{}) {
	switch m := message.(type) {
	case resource.OwnershipTransfer:
		worker.handleTransfer(m)
	case HeirRequest:
		worker.handleHeirRequest(m)
	case HeirDown:
		worker.handleHeirDown(m)
	case CheckHeir:
		worker.handleCheckHeir(m)
	case Shutdown:
		worker.handleShutdown(m)
	}
}

// Terminate implements process.Handler.Terminate
func (worker *Worker) Terminate(reason process.ExitReason) {
	if worker.monitor != nil {
		worker.monitor.Stop()
	}

	worker.logger.Debug("worker terminated", zap.String("reason", string(reason)))
}

// handleTransfer makes this worker the store's owner. The previous
// owner's counterpart slot is now vacant or stale, so the new owner
// immediately lines up a fresh heir behind itself.
func (worker *Worker) handleTransfer(transfer resource.OwnershipTransfer) {
	worker.isOwner = true
	worker.metrics.Transfers.WithLabelValues(string(transfer.Reason)).Inc()

	worker.logger.Info("ownership transferred",
		zap.String("reason", string(transfer.Reason)),
		zap.String("owner", string(worker.self.ID())),
		zap.String("previous", string(transfer.From)))

	worker.replaceHeir()
	worker.scheduleMonitor()
}

func (worker *Worker) handleHeirRequest(request HeirRequest) {
	if !worker.isOwner {
		return
	}

	worker.registerHeir(request.Candidate)
}

func (worker *Worker) handleHeirDown(down HeirDown) {
	if !worker.isOwner {
		return
	}

	worker.logger.Info("heir terminated", zap.String("heir", string(worker.heir)))
	worker.metrics.HeirReplacements.Inc()
	worker.heir = process.Undefined
	worker.replaceHeir()
}

func (worker *Worker) handleCheckHeir(check CheckHeir) {
	if !worker.isOwner {
		return
	}

	worker.metrics.MonitorChecks.Inc()

	heir := worker.config.Manager.HeirProcess(worker.config.Handle)

	if heir == nil || !heir.Alive() {
		// Same handling as a termination notice. This is the backstop
		// for the case where the notice was lost or the heir was
		// registered by someone we never watched.
		worker.logger.Info("heir liveness check failed", zap.String("heir", string(worker.config.Manager.CurrentHeir(worker.config.Handle))))
		worker.metrics.HeirReplacements.Inc()
		worker.replaceHeir()
	}

	worker.scheduleMonitor()
}

func (worker *Worker) handleShutdown(shutdown Shutdown) {
	worker.logger.Info("shutdown received", zap.Bool("safe", shutdown.Safe))

	if shutdown.Safe && worker.isOwner {
		if heir := worker.config.Manager.HeirProcess(worker.config.Handle); heir != nil {
			// Hand the store over before exiting so the heir's
			// promotion carries the gift reason rather than
			// looking like a crash
			worker.config.Manager.GiftOwnership(worker.config.Handle, heir)
			worker.isOwner = false
		}
	}

	worker.self.Stop(process.ReasonShutdown)
}

// replaceHeir locates or respawns the worker's counterpart and
// registers it as the store's heir. A failed registration is not an
// error: it means the counterpart died already, and the next
// termination notice or monitor tick will try again.
func (worker *Worker) replaceHeir() {
	sibling := worker.config.Sibling()

	if sibling == nil {
		return
	}

	worker.registerHeir(sibling)
}

func (worker *Worker) registerHeir(candidate *process.Process) {
	if !worker.config.Manager.SetHeir(worker.config.Handle, candidate) {
		return
	}

	worker.metrics.HeirAssignments.Inc()
	worker.logger.Info("heir registered", zap.String("heir", string(candidate.ID())))

	if candidate.ID() == worker.heir {
		// Already watching this heir
		return
	}

	worker.heir = candidate.ID()
	self := worker.self
	handle := worker.config.Handle

	process.Watch(candidate, func() {
		self.Send(HeirDown{Handle: handle})
	})
}

func (worker *Worker) scheduleMonitor() {
	interval := worker.config.Monitor

	if interval == MonitorDisabled {
		return
	}

	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	if worker.monitor != nil {
		worker.monitor.Stop()
	}

	self := worker.self
	handle := worker.config.Handle

	worker.monitor = time.AfterFunc(interval, func() {
		self.Send(CheckHeir{Handle: handle})
	})
}
