//go:build linux

package loop

import (
	c "loopio/internal"
	"loopio/internal/config"

	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

const MMAP_MODE = unix.MAP_ANON | unix.MAP_PRIVATE
const MMAP_PROT = unix.PROT_READ | unix.PROT_WRITE

// IORING_FSYNC_DATASYNC
const FSYNC_DATASYNC = uint32(1)

var ErrLoopClosed = errors.New("loop: submit after close")

// Page-aligned scratch slabs for the pool workers. This allocation will be
// aligned to the system page size (check using: `getconf PAGESIZE`. This will
// basically always be 0x1000 (4096))
func AllocSlab(size int) ([]byte, error) {
	raw, err := unix.Mmap(-1, 0, size, MMAP_PROT, MMAP_MODE)
	if err != nil {
		slog.Error("AllocSlab", "err", err)
	}
	return raw, err
}

func DeallocSlab(ptr []byte) error {
	err := unix.Munmap(ptr)
	if err != nil {
		slog.Error("DeallocSlab", "err", err)
	}
	return err
}

// Loop is the completion side of the bridge. One goroutine (locked to its
// thread) owns the ring and is the only place a Sink ever runs. fd-based
// data ops go through io_uring; path-based ops go to a small worker pool and
// their completions are funneled back onto the loop goroutine.
type Loop struct {
	log			slog.Logger
	cfg 		*config.Config
	ring 		*giouring.Ring
	opQueue		chan *Op		// ring-path submissions
	poolQueue	chan *Op		// pool-path submissions
	doneQueue	chan *Op		// pool completions, drained by the loop goroutine
	wakeQueue	chan *Async
	opSem		chan struct{}
	pinned		map[*Op]struct{}
	quit		chan struct{}
	wg			sync.WaitGroup
	slab		[]byte
}

func CreateLoop(cfg *config.Config) (*Loop, error) {
	log := *slog.With("src", "Loop")

	ring, err := giouring.CreateRing(cfg.RingEntries)
	if err != nil { return nil, err }

	slab, err := AllocSlab(c.SCRATCH_LEN * cfg.PoolWorkers)
	if err != nil {
		ring.QueueExit()
		return nil, err
	}

	m := Loop {
		log: 		log,
		cfg: 		cfg,
		ring: 		ring,
		opQueue: 	make(chan *Op, cfg.QueueSize),
		poolQueue: 	make(chan *Op, cfg.QueueSize),
		doneQueue: 	make(chan *Op, cfg.QueueSize),
		wakeQueue: 	make(chan *Async, cfg.QueueSize),
		opSem: 		make(chan struct{}, cfg.RingEntries),
		pinned: 	make(map[*Op]struct{}, cfg.RingEntries),
		quit: 		make(chan struct{}),
		slab: 		slab,
	}

	for i := range cfg.PoolWorkers {
		m.wg.Add(1)
		go m.worker(slab[c.SCRATCH_LEN*i : c.SCRATCH_LEN*(i+1)])
	}
	go m.run()

	return &m, nil
}

// Close tears the loop down. Callers must have collected all their
// completions first; anything still in flight is dropped, and any later
// Submit fails with ErrLoopClosed.
func (m *Loop) Close() {
	close(m.quit)
	close(m.poolQueue)
	m.wg.Wait()
	DeallocSlab(m.slab)
}

// Submit queues op and returns immediately. op.Sink fires exactly once on the
// loop goroutine when the operation has fully finished.
func (m *Loop) Submit(op *Op) error {
	select {
	case <-m.quit:
		return ErrLoopClosed
	default:
	}
	if ringable(op) {
		m.opSem <- struct{}{}
		m.opQueue <- op
	} else {
		m.poolQueue <- op
	}
	return nil
}

// Only positioned data ops on an fd ride the ring; everything else needs a
// path walk and goes to the pool.
func ringable(op *Op) bool {
	switch op.Opcode {
	case OpRead, OpWrite:
		return len(op.Buf) > 0 && op.Off >= 0
	case OpFsync, OpFdatasync:
		return true
	}
	return false
}

func (m *Loop) worker(scratch []byte) {
	defer m.wg.Done()
	for op := range m.poolQueue {
		ExecOp(op, scratch)
		m.doneQueue <- op
	}
}

func (m *Loop) prepSQE(op *Op) {
	sqe := m.ring.GetSQE()

	switch op.Opcode {
	case OpRead:
		sqe.PrepareRead(op.Fd, uintptr(unsafe.Pointer(&op.Buf[0])), op.Len, uint64(op.Off))
	case OpWrite:
		sqe.PrepareWrite(op.Fd, uintptr(unsafe.Pointer(&op.Buf[0])), op.Len, uint64(op.Off))
	case OpFsync:
		sqe.PrepareFsync(op.Fd, 0)
	case OpFdatasync:
		sqe.PrepareFsync(op.Fd, FSYNC_DATASYNC)
	}

	sqe.UserData = uint64(uintptr(unsafe.Pointer(op)))
	// the kernel only holds a raw pointer while the op is in flight, keep
	// the Op (and its Buf) reachable until the CQE comes back
	m.pinned[op] = struct{}{}
}

func (m *Loop) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	stime := syscall.Timespec{Sec: 0, Nsec: 1_000_000}
	var sigset unix.Sigset_t

	for {
		select {
		case <-m.quit:
			m.ring.QueueExit()
			return
		default:
		}

		COLLECT: for {
			select {
			case op := <-m.opQueue:
				m.prepSQE(op)
			default:
				break COLLECT
			}
		}

		// The 1ms wait doubles as the poll interval for pool completions
		// and wakeups, so we call it even with nothing queued on the ring.
		_, err := m.ring.SubmitAndWaitTimeout(1, &stime, &sigset)
		if err != nil && err != unix.ETIME && err != unix.EINTR {
			m.log.Error("SubmitAndWaitTimeout", "err", err)
		}

		for {
			cqe, err := m.ring.PeekCQE()
			if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
				break
			} else if err != nil {
				m.log.Error("PeekCQE fatal", "err", err)
				panic("io_uring is wedged")
			}
			if cqe == nil { break }

			op := (*Op)(unsafe.Pointer(uintptr(cqe.UserData)))
			if cqe.Res < 0 {
				op.Res = c.FAIL
				op.Errno = unix.Errno(-cqe.Res)
			} else {
				op.Res = int64(cqe.Res)
				op.Errno = 0
			}

			m.ring.CQESeen(cqe)
			delete(m.pinned, op)
			<-m.opSem

			op.Sink(op)
		}

		DRAIN: for {
			select {
			case op := <-m.doneQueue:
				op.Sink(op)
			case a := <-m.wakeQueue:
				a.fire()
			default:
				break DRAIN
			}
		}
	}
}

// Async is a wakeup handle. Send may be called from any goroutine, any
// number of times; the callback runs on the loop goroutine, with sends
// coalesced while one is already pending. Close is deterministic and
// idempotent - no callback fires after it returns on the loop goroutine.
type Async struct {
	loop	*Loop
	cb		func()
	pending	atomic.Bool
	closed	atomic.Bool
}

func (m *Loop) CreateAsync(cb func()) *Async {
	return &Async{loop: m, cb: cb}
}

func (a *Async) Send() {
	if a.closed.Load() { return }
	if !a.pending.CompareAndSwap(false, true) { return }
	select {
	case a.loop.wakeQueue <- a:
	case <-a.loop.quit:
		a.pending.Store(false)
	}
}

func (a *Async) Close() {
	a.closed.Store(true)
}

func (a *Async) fire() {
	a.pending.Store(false)
	if a.closed.Load() { return }
	a.cb()
}
