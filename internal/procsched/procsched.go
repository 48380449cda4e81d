// Package procsched implements the cooperative process and mailbox
// model: lightweight processes are object-shaped values
// with their own call stacks and pending-message mailboxes, scheduled
// one at a time with FIFO resumption, switching only at designated
// suspension points (mailbox receive, explicit yield, intcheck, and
// blocking I/O boundaries).
package procsched

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"setl/internal/interp"
	"setl/internal/serr"
	"setl/internal/value"
)

type procState int

const (
	stateRunnable procState = iota
	stateRunning
	stateBlocked
	stateDone
)

// Process is the scheduler's record behind a FormProcess specifier's
// object header. Each process runs on its own goroutine but only
// while it holds the scheduler's baton, so bytecode never executes
// concurrently.
type Process struct {
	ID    int32
	Obj   *value.ObjectHeader
	Mbox  *Mailbox
	VM    *interp.VM
	sched *Scheduler

	entry  *value.Procedure
	args   []value.Specifier
	resume chan struct{}
	state  procState
	result value.Specifier
	err    error
}

type event struct {
	p      *Process
	reason procState // stateRunnable (yield), stateBlocked, stateDone
}

// Scheduler is the single cooperative run queue. It implements
// interp.ProcessHost so the dispatch loop's initproc, intcheck, and
// menviron opcodes can drive it without the interpreter package
// depending on this one.
type Scheduler struct {
	base *interp.VM

	mu     sync.Mutex
	runq   []*Process
	byVM   map[*interp.VM]*Process
	live   int
	nextID int32

	ctl   chan event
	ready chan *Process

	// ioSem bounds the number of OS goroutines concurrently parked in
	// real blocking I/O while the logical schedule stays cooperative.
	ioSem *semaphore.Weighted
}

// MaxBlockedIO is the weight of the scheduler's I/O semaphore: at
// most this many processes may sit inside a blocking file or socket
// read at once.
const MaxBlockedIO = 8

func NewScheduler(base *interp.VM) *Scheduler {
	s := &Scheduler{
		base:  base,
		byVM:  make(map[*interp.VM]*Process),
		ctl:   make(chan event),
		ready: make(chan *Process, 64),
		ioSem: semaphore.NewWeighted(MaxBlockedIO),
	}
	base.Host = s
	return s
}

// Spawn creates a new process whose entry procedure is proc, enqueues
// it runnable, and returns its object header.
func (s *Scheduler) Spawn(proc *value.Procedure, args []value.Specifier) (*value.ObjectHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(proc, args), nil
}

func (s *Scheduler) spawnLocked(proc *value.Procedure, args []value.Specifier) *value.ObjectHeader {
	s.nextID++
	p := &Process{
		ID:     s.nextID,
		sched:  s,
		entry:  proc,
		args:   args,
		resume: make(chan struct{}),
		state:  stateRunnable,
		VM:     s.base.Fork(),
	}
	p.Mbox = &Mailbox{owner: p}
	p.Obj = &value.ObjectHeader{Class: proc.Unit, Process: p}
	s.byVM[p.VM] = p
	s.live++
	s.runq = append(s.runq, p)

	go func() {
		<-p.resume
		res, err := p.VM.CallAny(p.entry, p.args)
		p.result, p.err = res, err
		s.ctl <- event{p: p, reason: stateDone}
	}()
	return p.Obj
}

// Main wraps the top-level program body as process 1 and runs the
// scheduler until every process has terminated (or stopall fires).
// The returned value and error are the main process's.
func (s *Scheduler) Main(proc *value.Procedure, args []value.Specifier) (value.Specifier, error) {
	s.mu.Lock()
	obj := s.spawnLocked(proc, args)
	s.mu.Unlock()
	main := obj.Process.(*Process)
	if err := s.Run(); err != nil {
		return value.Omega, err
	}
	return main.result, main.err
}

// Run drives the run queue: pop the head (FIFO), hand it the baton,
// wait for it to yield, block, or finish. When the queue is empty but
// processes remain blocked, wait for an unblocking event (a send or a
// completed I/O hand-off).
func (s *Scheduler) Run() error {
	for {
		p := s.next()
		if p == nil {
			return nil
		}
		p.state = stateRunning
		p.resume <- struct{}{}
		ev := <-s.ctl
		switch ev.reason {
		case stateRunnable:
			s.mu.Lock()
			ev.p.state = stateRunnable
			s.runq = append(s.runq, ev.p)
			s.mu.Unlock()
		case stateBlocked:
			ev.p.state = stateBlocked
		case stateDone:
			ev.p.state = stateDone
			s.mu.Lock()
			s.live--
			s.mu.Unlock()
			if ev.p.err == interp.ErrStopAll {
				return interp.ErrStopAll
			}
			if ev.p.err != nil && serr.IsGiveup(ev.p.err) {
				return ev.p.err
			}
		}
	}
}

func (s *Scheduler) next() *Process {
	for {
		s.mu.Lock()
		// Drain completed unblocks first so send order stays FIFO.
		for {
			select {
			case p := <-s.ready:
				p.state = stateRunnable
				s.runq = append(s.runq, p)
				continue
			default:
			}
			break
		}
		if len(s.runq) > 0 {
			p := s.runq[0]
			s.runq = s.runq[1:]
			s.mu.Unlock()
			return p
		}
		live := s.live
		s.mu.Unlock()
		if live == 0 {
			return nil
		}
		// Everything alive is blocked; wait for an unblocking event.
		p := <-s.ready
		s.mu.Lock()
		p.state = stateRunnable
		s.runq = append(s.runq, p)
		s.mu.Unlock()
	}
}

// Yield implements the intcheck / explicit-yield suspension point.
// When no other process is runnable the yield is a no-op, so tight
// loops in a sole process pay only a lock acquisition.
func (s *Scheduler) Yield(vm *interp.VM) {
	p := s.processFor(vm)
	if p == nil {
		return
	}
	s.mu.Lock()
	others := len(s.runq) > 0
	s.mu.Unlock()
	if !others {
		return
	}
	s.ctl <- event{p: p, reason: stateRunnable}
	<-p.resume
}

// Mailbox returns the FormMailbox specifier of the process executing
// on vm (the menviron opcode).
func (s *Scheduler) Mailbox(vm *interp.VM) value.Specifier {
	p := s.processFor(vm)
	if p == nil {
		return value.Omega
	}
	return value.MakeMailbox(&value.Mailbox{Impl: p.Mbox})
}

func (s *Scheduler) processFor(vm *interp.VM) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byVM[vm]
}

// BlockingIO runs fn on the calling process's goroutine while the
// baton moves on, bounded by the I/O semaphore; the process re-enters
// the run queue when fn returns. Called without a scheduled process
// (vm not owned by any process), fn simply runs inline.
func (s *Scheduler) BlockingIO(vm *interp.VM, fn func() error) error {
	p := s.processFor(vm)
	if p == nil || p.state != stateRunning {
		return fn()
	}
	if err := s.ioSem.Acquire(context.Background(), 1); err != nil {
		return fn()
	}
	s.ctl <- event{p: p, reason: stateBlocked}
	err := fn()
	s.ioSem.Release(1)
	s.ready <- p
	<-p.resume
	return err
}

// receive blocks the calling process until its mailbox is non-empty,
// then dequeues the oldest message (FIFO delivery).
func (s *Scheduler) receive(p *Process) value.Specifier {
	for {
		if v, ok := p.Mbox.tryDequeue(); ok {
			return v
		}
		s.ctl <- event{p: p, reason: stateBlocked}
		<-p.resume
	}
}

// send enqueues msg and wakes the owner if it is parked in a receive.
// A send never blocks.
func (s *Scheduler) send(mb *Mailbox, msg value.Specifier) {
	wake := mb.enqueue(msg)
	if wake {
		s.ready <- mb.owner
	}
}

// Stats reports scheduler counters for the driver's -stats flag.
// steps sums instruction counts across every process VM plus the base
// (loader-time) VM.
func (s *Scheduler) Stats() (processes int, runnable int, pending int, steps uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps = s.base.Steps
	for _, p := range s.byVM {
		pending += p.Mbox.depth()
		steps += p.VM.Steps
	}
	return int(s.nextID), len(s.runq), pending, steps
}

// Mailbox is the pending-message queue owned by exactly one process.
// Any process holding a reference may send; only the owner receives.
type Mailbox struct {
	owner *Process

	mu      sync.Mutex
	q       []value.Specifier
	waiting bool
}

func (m *Mailbox) enqueue(v value.Specifier) (wake bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.q = append(m.q, value.Retain(v))
	wake = m.waiting
	m.waiting = false
	return wake
}

func (m *Mailbox) tryDequeue() (value.Specifier, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.q) == 0 {
		m.waiting = true
		return value.Omega, false
	}
	v := m.q[0]
	m.q = m.q[1:]
	return v, true
}

func (m *Mailbox) depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.q)
}
