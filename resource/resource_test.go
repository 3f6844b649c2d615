package resource_test

import (
	"sync"
	"testing"
	"time"

	"github.com/heirloom-kv/heirloom/process"
	"github.com/heirloom-kv/heirloom/resource"
	"github.com/heirloom-kv/heirloom/storage/kv"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("condition not met within %s", timeout)
}

// inbox is a process handler that records every delivered message
type inbox struct {
	mu       sync.Mutex
	messages []interface{}
}

func (inbox *inbox) Init(self *process.Process) {
}

func (inbox *inbox) Receive(message interface{}) {
	inbox.mu.Lock()
	defer inbox.mu.Unlock()

	inbox.messages = append(inbox.messages, message)
}

func (inbox *inbox) Terminate(reason process.ExitReason) {
}

func (inbox *inbox) transfers() []resource.OwnershipTransfer {
	inbox.mu.Lock()
	defer inbox.mu.Unlock()

	transfers := []resource.OwnershipTransfer{}

	for _, message := range inbox.messages {
		if transfer, ok := message.(resource.OwnershipTransfer); ok {
			transfers = append(transfers, transfer)
		}
	}

	return transfers
}

func newManager() *resource.Manager {
	return resource.NewManager(resource.ManagerConfig{Logger: zap.NewNop()})
}

func spawnInbox() (*process.Process, *inbox) {
	handler := &inbox{}

	return process.Spawn(process.Config{Handler: handler}), handler
}

func createStore(t *testing.T, manager *resource.Manager, owner *process.Process) resource.Handle {
	t.Helper()

	handle, err := manager.CreateStore("test", kv.NewMemoryStore(), owner)

	if err != nil {
		t.Fatalf("CreateStore returned error: %s", err.Error())
	}

	return handle
}

func TestCreateStoreRequiresLiveOwner(t *testing.T) {
	manager := newManager()
	dead, _ := spawnInbox()

	dead.Kill()
	<-dead.Done()

	if _, err := manager.CreateStore("test", kv.NewMemoryStore(), dead); err != resource.ErrDeadOwner {
		t.Fatalf("expected ErrDeadOwner, got %v", err)
	}

	if _, err := manager.CreateStore("test", kv.NewMemoryStore(), nil); err != resource.ErrDeadOwner {
		t.Fatalf("expected ErrDeadOwner for nil owner, got %v", err)
	}
}

func TestUnknownHandle(t *testing.T) {
	manager := newManager()

	if manager.CurrentOwner(resource.Handle("nope")) != process.Undefined {
		t.Fatalf("expected undefined owner for unknown handle")
	}

	if manager.CurrentHeir(resource.Handle("nope")) != process.Undefined {
		t.Fatalf("expected undefined heir for unknown handle")
	}

	if _, ok := manager.Data(resource.Handle("nope")); ok {
		t.Fatalf("expected no data for unknown handle")
	}

	if err := manager.DestroyStore(resource.Handle("nope")); err != nil {
		t.Fatalf("expected destroying an unknown handle to be a no-op, got %v", err)
	}
}

func TestGiftOwnership(t *testing.T) {
	manager := newManager()
	creator, _ := spawnInbox()
	target, targetInbox := spawnInbox()
	defer creator.Kill()
	defer target.Kill()

	handle := createStore(t, manager, creator)

	if manager.CurrentOwner(handle) != creator.ID() {
		t.Fatalf("expected creator to own the store initially")
	}

	if !manager.GiftOwnership(handle, target) {
		t.Fatalf("expected gift to a live target to succeed")
	}

	if manager.CurrentOwner(handle) != target.ID() {
		t.Fatalf("expected target to own the store after gift")
	}

	waitFor(t, time.Second, func() bool {
		return len(targetInbox.transfers()) == 1
	})

	transfer := targetInbox.transfers()[0]

	if transfer.Handle != handle || transfer.From != creator.ID() || transfer.Reason != resource.ReasonGift {
		t.Fatalf("unexpected transfer notification: %+v", transfer)
	}
}

func TestGiftToDeadTargetIsNoOp(t *testing.T) {
	manager := newManager()
	creator, _ := spawnInbox()
	target, _ := spawnInbox()
	defer creator.Kill()

	handle := createStore(t, manager, creator)

	target.Kill()
	<-target.Done()

	if manager.GiftOwnership(handle, target) {
		t.Fatalf("expected gift to a dead target to fail")
	}

	if manager.CurrentOwner(handle) != creator.ID() {
		t.Fatalf("expected ownership to be unchanged after failed gift")
	}
}

func TestSetHeir(t *testing.T) {
	manager := newManager()
	owner, _ := spawnInbox()
	heir, _ := spawnInbox()
	defer owner.Kill()
	defer heir.Kill()

	handle := createStore(t, manager, owner)

	if manager.CurrentHeir(handle) != process.Undefined {
		t.Fatalf("expected no heir after creation")
	}

	if !manager.SetHeir(handle, heir) {
		t.Fatalf("expected heir registration to succeed")
	}

	if manager.CurrentHeir(handle) != heir.ID() {
		t.Fatalf("expected heir to be registered")
	}

	// The owner can never be its own heir
	if manager.SetHeir(handle, owner) {
		t.Fatalf("expected registering the owner as heir to fail")
	}

	dead, _ := spawnInbox()

	dead.Kill()
	<-dead.Done()

	if manager.SetHeir(handle, dead) {
		t.Fatalf("expected registering a dead heir to fail")
	}

	if manager.CurrentHeir(handle) != heir.ID() {
		t.Fatalf("expected heir registration to be unchanged")
	}
}

func TestOwnerDeathTransfersToHeir(t *testing.T) {
	manager := newManager()
	owner, _ := spawnInbox()
	heir, heirInbox := spawnInbox()
	defer heir.Kill()

	handle := createStore(t, manager, owner)
	manager.SetHeir(handle, heir)

	owner.Kill()

	waitFor(t, time.Second, func() bool {
		return manager.CurrentOwner(handle) == heir.ID()
	})

	waitFor(t, time.Second, func() bool {
		return len(heirInbox.transfers()) == 1
	})

	transfer := heirInbox.transfers()[0]

	if transfer.From != owner.ID() || transfer.Reason != resource.ReasonCrash {
		t.Fatalf("unexpected transfer notification: %+v", transfer)
	}

	// Promotion vacates the heir position
	if manager.CurrentHeir(handle) != process.Undefined {
		t.Fatalf("expected heir position to be vacated by promotion")
	}
}

func TestOwnerDeathWithoutHeirDestroysStore(t *testing.T) {
	manager := newManager()
	owner, _ := spawnInbox()

	store := kv.NewMemoryStore()
	handle, err := manager.CreateStore("test", store, owner)

	if err != nil {
		t.Fatalf("CreateStore returned error: %s", err.Error())
	}

	owner.Kill()

	waitFor(t, time.Second, func() bool {
		_, ok := manager.Data(handle)

		return !ok
	})

	if _, err := store.Get([]byte("a")); err != kv.ErrClosed {
		t.Fatalf("expected destroyed store contents to be closed, got %v", err)
	}
}

func TestOwnerDeathWithDeadHeirDestroysStore(t *testing.T) {
	manager := newManager()
	owner, _ := spawnInbox()
	heir, _ := spawnInbox()

	handle := createStore(t, manager, owner)
	manager.SetHeir(handle, heir)

	heir.Kill()
	<-heir.Done()

	owner.Kill()

	waitFor(t, time.Second, func() bool {
		_, ok := manager.Data(handle)

		return !ok
	})
}

func TestDataAccessIsRoleIndependent(t *testing.T) {
	manager := newManager()
	owner, _ := spawnInbox()
	defer owner.Kill()

	handle := createStore(t, manager, owner)
	store, ok := manager.Data(handle)

	if !ok {
		t.Fatalf("expected data access to the store")
	}

	// Any caller can write and read regardless of ownership
	if err := store.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put returned error: %s", err.Error())
	}

	value, err := store.Get([]byte("k"))

	if err != nil || string(value) != "v" {
		t.Fatalf("expected to read back %q, got %q (err %v)", "v", string(value), err)
	}
}
