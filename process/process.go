// Package process implements a minimal message-passing process layer:
// independently scheduled units of execution that communicate only
// through fire-and-forget sends to buffered mailboxes. Delivery is
// best-effort. A message sent to a dead process, or to a process whose
// mailbox is full, is silently dropped; consumers of this package must
// tolerate loss and recover through their own monitoring.
package process

import (
	"sync"

	"github.com/heirloom-kv/heirloom/utils/uuid"
)

// ID uniquely identifies a live process
type ID string

// Undefined is the identity returned when no process
// holds the queried position
const Undefined ID = ""

// ExitReason describes why a process terminated
type ExitReason string

const (
	// ReasonNormal indicates a clean stop
	ReasonNormal ExitReason = "normal"
	// ReasonShutdown indicates an intentional shutdown directive
	ReasonShutdown ExitReason = "shutdown"
	// ReasonKilled indicates the process was killed externally
	ReasonKilled ExitReason = "killed"
	// ReasonCrash indicates the process's handler panicked
	ReasonCrash ExitReason = "crash"
)

// Handler receives a process's messages. All three methods are
// invoked from the process's own goroutine, so a handler needs
// no internal locking for state that only it touches.
type Handler interface {
	// Init is called once, before the first message is received
	Init(self *Process)
	// Receive is called once per delivered message
	Receive(message interface{})
	// Terminate is called once, after the process stops
	// receiving messages
	Terminate(reason ExitReason)
}

// Config contains configuration for a process
type Config struct {
	// Handler receives the process's messages. Required.
	Handler Handler
	// MailboxSize is the mailbox buffer capacity.
	// Defaults to DefaultMailboxSize.
	MailboxSize int
}

// DefaultMailboxSize is the default mailbox buffer capacity
const DefaultMailboxSize = 64

// Process is a supervised unit of execution with a mailbox
type Process struct {
	id      ID
	handler Handler
	mailbox chan interface{}
	quit    chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	stopping bool
	reason   ExitReason
}

// Spawn starts a process draining its mailbox in a new goroutine
func Spawn(config Config) *Process {
	mailboxSize := config.MailboxSize

	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}

	process := &Process{
		id:      ID(uuid.MustUUID()),
		handler: config.Handler,
		mailbox: make(chan interface{}, mailboxSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go process.run()

	return process
}

func (process *Process) run() {
	defer close(process.done)
	defer func() {
		if r := recover(); r != nil {
			process.setReason(ReasonCrash, true)
		}

		process.terminate()
	}()

	process.handler.Init(process)

	for {
		select {
		case <-process.quit:
			return
		case message := <-process.mailbox:
			process.handler.Receive(message)
		}
	}
}

func (process *Process) terminate() {
	// A panicking Terminate must not prevent done from closing
	defer func() {
		recover()
	}()

	process.handler.Terminate(process.ExitReason())
}

// ID returns the process's identity
func (process *Process) ID() ID {
	return process.id
}

// Send delivers a message to the process's mailbox. It never
// blocks: it returns false without delivering when the process
// is dead or its mailbox is full.
func (process *Process) Send(message interface{}) bool {
	select {
	case <-process.done:
		return false
	default:
	}

	select {
	case process.mailbox <- message:
		return true
	default:
		return false
	}
}

// Stop asks the process to stop after the message it is currently
// handling, if any. It has no effect on an already-stopping process.
func (process *Process) Stop(reason ExitReason) {
	process.setReason(reason, false)
}

// Kill stops the process as if it had been terminated externally
func (process *Process) Kill() {
	process.setReason(ReasonKilled, false)
}

func (process *Process) setReason(reason ExitReason, force bool) {
	process.mu.Lock()
	defer process.mu.Unlock()

	if process.stopping && !force {
		return
	}

	process.reason = reason

	if !process.stopping {
		process.stopping = true
		close(process.quit)
	}
}

// ExitReason returns the reason the process stopped, or
// ReasonNormal while it is still running
func (process *Process) ExitReason() ExitReason {
	process.mu.Lock()
	defer process.mu.Unlock()

	if process.reason == "" {
		return ReasonNormal
	}

	return process.reason
}

// Done returns a channel that is closed once the process
// has fully terminated
func (process *Process) Done() <-chan struct{} {
	return process.done
}

// Alive returns true while the process has not terminated
func (process *Process) Alive() bool {
	select {
	case <-process.done:
		return false
	default:
		return true
	}
}

// Watch invokes fn from a new goroutine once the process
// terminates. If the process is already dead fn is invoked
// immediately.
func Watch(process *Process, fn func()) {
	go func() {
		<-process.done

		fn()
	}()
}
