// Package resource implements the lifecycle side of shared keyed stores:
// every store is owned by exactly one live process, a second process may
// be registered as its heir, and when the owning process terminates the
// manager either hands the store to the heir or destroys it.
package resource

import (
	"errors"
	"sync"

	"github.com/heirloom-kv/heirloom/process"
	"github.com/heirloom-kv/heirloom/storage/kv"
	"github.com/heirloom-kv/heirloom/utils/uuid"
	"go.uber.org/zap"
)

// Handle is an opaque identifier for a managed store
type Handle string

// Reason describes why ownership of a store moved
type Reason string

const (
	// ReasonCrash indicates ownership moved because the
	// previous owner terminated
	ReasonCrash Reason = "crash"
	// ReasonGift indicates ownership was handed over
	// voluntarily by the previous holder
	ReasonGift Reason = "gift"
)

// OwnershipTransfer is delivered to the mailbox of the process that
// just became a store's owner, and only to that process.
type OwnershipTransfer struct {
	Handle Handle
	From   process.ID
	Reason Reason
}

var (
	// ErrNoSuchStore indicates that the store doesn't exist. Either
	// it was never created or it was destroyed.
	ErrNoSuchStore = errors.New("store does not exist")
	// ErrDeadOwner indicates that a store cannot be created for an
	// owner process that has already terminated
	ErrDeadOwner = errors.New("owner process is not alive")
)

// ManagerConfig contains configuration for a Manager
type ManagerConfig struct {
	// Logger defaults to the global zap logger
	Logger *zap.Logger
}

// Manager tracks the owner and heir registrations of every managed
// store and performs the transfer-or-destroy decision whenever an
// owning process terminates: if a live heir is registered, ownership
// moves to it atomically and it receives an OwnershipTransfer
// notification; otherwise the store is destroyed.
type Manager struct {
	logger *zap.Logger

	mu     sync.Mutex
	stores map[Handle]*entry
}

type entry struct {
	name  string
	store kv.Store
	owner *process.Process
	heir  *process.Process
}

// NewManager creates an empty Manager
func NewManager(config ManagerConfig) *Manager {
	manager := &Manager{logger: config.Logger, stores: map[Handle]*entry{}}

	if manager.logger == nil {
		manager.logger = zap.L()
	}

	return manager
}

// CreateStore registers store under a fresh handle, owned by owner.
// The manager watches owner from this point on.
func (manager *Manager) CreateStore(name string, store kv.Store, owner *process.Process) (Handle, error) {
	if owner == nil || !owner.Alive() {
		return Handle(""), ErrDeadOwner
	}

	handle := Handle(uuid.MustUUID())

	manager.mu.Lock()
	manager.stores[handle] = &entry{name: name, store: store, owner: owner}
	manager.mu.Unlock()

	manager.watchOwner(handle, owner)

	manager.logger.Info("store created",
		zap.String("store", string(handle)),
		zap.String("name", name),
		zap.String("owner", string(owner.ID())))

	return handle, nil
}

// DestroyStore purges the store's contents and forgets the handle.
// It has no effect if the store was already destroyed.
func (manager *Manager) DestroyStore(handle Handle) error {
	manager.mu.Lock()
	e, ok := manager.stores[handle]

	if !ok {
		manager.mu.Unlock()

		return nil
	}

	delete(manager.stores, handle)
	manager.mu.Unlock()

	manager.logger.Info("store destroyed", zap.String("store", string(handle)), zap.String("name", e.name))

	return e.store.Purge()
}

// CurrentOwner returns the identity of the store's owning process,
// or process.Undefined if the store doesn't exist
func (manager *Manager) CurrentOwner(handle Handle) process.ID {
	if p := manager.OwnerProcess(handle); p != nil {
		return p.ID()
	}

	return process.Undefined
}

// CurrentHeir returns the identity of the store's registered heir,
// or process.Undefined if no heir is registered
func (manager *Manager) CurrentHeir(handle Handle) process.ID {
	if p := manager.HeirProcess(handle); p != nil {
		return p.ID()
	}

	return process.Undefined
}

// OwnerProcess returns the store's owning process, or nil
// if the store doesn't exist
func (manager *Manager) OwnerProcess(handle Handle) *process.Process {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if e, ok := manager.stores[handle]; ok {
		return e.owner
	}

	return nil
}

// HeirProcess returns the store's registered heir, or nil
// if no heir is registered
func (manager *Manager) HeirProcess(handle Handle) *process.Process {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if e, ok := manager.stores[handle]; ok {
		return e.heir
	}

	return nil
}

// Data returns the store's keyed contents for reading and writing.
// Data access is independent of ownership: any caller may use the
// returned store concurrently at any time.
func (manager *Manager) Data(handle Handle) (kv.Store, bool) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if e, ok := manager.stores[handle]; ok {
		return e.store, true
	}

	return nil, false
}

// SendOwner delivers a message to the mailbox of the store's
// current owner. Delivery is fire-and-forget.
func (manager *Manager) SendOwner(handle Handle, message interface{}) bool {
	p := manager.OwnerProcess(handle)

	if p == nil {
		return false
	}

	return p.Send(message)
}

// GiftOwnership voluntarily hands the store to target, which receives
// an OwnershipTransfer notification. It returns false without effect
// when the store is gone or the target is dead; a dead target typically
// means a concurrent failure that the protocol will heal on its own.
func (manager *Manager) GiftOwnership(handle Handle, target *process.Process) bool {
	if target == nil || !target.Alive() {
		return false
	}

	manager.mu.Lock()
	e, ok := manager.stores[handle]

	if !ok {
		manager.mu.Unlock()

		return false
	}

	previous := e.owner
	e.owner = target

	if e.heir == target {
		// The target vacates its heir position by becoming owner
		e.heir = nil
	}

	manager.mu.Unlock()

	manager.watchOwner(handle, target)
	target.Send(OwnershipTransfer{Handle: handle, From: previous.ID(), Reason: ReasonGift})

	manager.logger.Info("ownership transferred",
		zap.String("store", string(handle)),
		zap.String("reason", string(ReasonGift)),
		zap.String("owner", string(target.ID())),
		zap.String("previous", string(previous.ID())))

	return true
}

// SetHeir registers target as the store's heir, replacing any
// previous registration. It returns false without effect when
// the store is gone or the target is dead.
func (manager *Manager) SetHeir(handle Handle, target *process.Process) bool {
	if target == nil || !target.Alive() {
		return false
	}

	manager.mu.Lock()
	e, ok := manager.stores[handle]

	if !ok || e.owner == target {
		// A process never holds both roles for the same store
		manager.mu.Unlock()

		return false
	}

	e.heir = target
	manager.mu.Unlock()

	return true
}

func (manager *Manager) watchOwner(handle Handle, owner *process.Process) {
	process.Watch(owner, func() {
		manager.ownerExited(handle, owner)
	})
}

// ownerExited runs whenever a process that was a store's owner at some
// point terminates. If it is still the owner, ownership either moves to
// a live registered heir or the store is destroyed.
func (manager *Manager) ownerExited(handle Handle, owner *process.Process) {
	manager.mu.Lock()
	e, ok := manager.stores[handle]

	if !ok || e.owner != owner {
		// The store is gone or ownership already moved on
		manager.mu.Unlock()

		return
	}

	if e.heir == nil || !e.heir.Alive() {
		delete(manager.stores, handle)
		manager.mu.Unlock()

		manager.logger.Info("store destroyed with owner",
			zap.String("store", string(handle)),
			zap.String("name", e.name),
			zap.String("owner", string(owner.ID())))

		e.store.Purge()

		return
	}

	promoted := e.heir
	e.owner = promoted
	e.heir = nil
	manager.mu.Unlock()

	manager.watchOwner(handle, promoted)
	promoted.Send(OwnershipTransfer{Handle: handle, From: owner.ID(), Reason: ReasonCrash})

	manager.logger.Info("ownership transferred",
		zap.String("store", string(handle)),
		zap.String("reason", string(ReasonCrash)),
		zap.String("owner", string(promoted.ID())),
		zap.String("previous", string(owner.ID())))
}
