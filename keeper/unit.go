package keeper

import (
	"sync"

	"github.com/heirloom-kv/heirloom/process"
	"github.com/heirloom-kv/heirloom/resource"
	"github.com/heirloom-kv/heirloom/worker"
	"go.uber.org/zap"
)

// unit supervises exactly two workers for one store under an
// independent-restart policy: whenever a slot's worker terminates
// while the unit is active, a replacement is started in that slot
// without touching the other slot. The workers' protocol then
// re-establishes the owner and heir roles on its own.
type unit struct {
	name         string
	handle       resource.Handle
	manager      *resource.Manager
	workerConfig worker.Config
	logger       *zap.Logger
	onDefunct    func(*unit)

	mu      sync.Mutex
	slots   [2]*process.Process
	stopped bool
}

// start spawns both workers and performs the initial role
// assignment: ownership is gifted to the first worker and the
// second is registered as heir. From here on the workers and the
// resource manager coordinate without the unit's involvement,
// except for restarts and terminal shutdown.
func (unit *unit) start() {
	unit.mu.Lock()
	a := unit.startWorkerLocked(0)
	b := unit.startWorkerLocked(1)
	unit.mu.Unlock()

	if !unit.manager.GiftOwnership(unit.handle, a) {
		unit.logger.Warn("initial ownership gift failed", zap.String("store", string(unit.handle)))
	}

	if !unit.manager.SetHeir(unit.handle, b) {
		unit.logger.Warn("initial heir registration failed", zap.String("store", string(unit.handle)))
	}
}

// startWorkerLocked starts a fresh worker in the given slot.
// The caller must hold unit.mu.
func (unit *unit) startWorkerLocked(slot int) *process.Process {
	config := unit.workerConfig
	config.Sibling = func() *process.Process {
		return unit.other(slot)
	}

	p := worker.Start(config)
	unit.slots[slot] = p

	process.Watch(p, func() {
		unit.workerExited(slot, p)
	})

	return p
}

// other returns the live worker in the slot opposite the given one,
// restarting it first if it died. Owners call this through their
// Sibling hook to line up a fresh heir; the restart path and the
// unit's own restart policy are the same code, so a worker can never
// end up with more than one counterpart.
func (unit *unit) other(slot int) *process.Process {
	unit.mu.Lock()
	defer unit.mu.Unlock()

	if unit.stopped {
		return nil
	}

	counterpart := 1 - slot

	if p := unit.slots[counterpart]; p != nil && p.Alive() {
		return p
	}

	return unit.startWorkerLocked(counterpart)
}

// workerExited is the unit's restart policy. A dead slot is refilled
// while the unit is active and its store still exists; the replacement
// re-enters the starting path and requests the heir role from the
// current owner. When the store itself is gone the unit winds down
// instead of restarting into nothing.
func (unit *unit) workerExited(slot int, p *process.Process) {
	unit.mu.Lock()

	if unit.stopped || unit.slots[slot] != p {
		unit.mu.Unlock()

		return
	}

	if _, ok := unit.manager.Data(unit.handle); !ok {
		unit.stopped = true
		remaining := unit.slots[1-slot]
		unit.mu.Unlock()

		if remaining != nil {
			remaining.Stop(process.ReasonShutdown)
		}

		if unit.onDefunct != nil {
			unit.onDefunct(unit)
		}

		return
	}

	unit.startWorkerLocked(slot)
	unit.mu.Unlock()
}

// stop terminates the unit: no further restarts, the store is
// destroyed, and both workers are stopped. It is safe to call
// more than once.
func (unit *unit) stop() {
	unit.mu.Lock()

	if unit.stopped {
		unit.mu.Unlock()

		return
	}

	unit.stopped = true
	a, b := unit.slots[0], unit.slots[1]
	unit.mu.Unlock()

	// Destroying the store first keeps the owner's termination from
	// triggering a pointless transfer to the heir mid-shutdown
	unit.manager.DestroyStore(unit.handle)

	if a != nil {
		a.Stop(process.ReasonShutdown)
	}

	if b != nil {
		b.Stop(process.ReasonShutdown)
	}
}
