package stream

import (
	"loopio/internal/util"

	"errors"
	"log/slog"

	"github.com/eapache/queue"
	"github.com/negrel/assert"
	"golang.org/x/sys/unix"
)

var ErrSlotsFull = errors.New("stream: no free stream slots")
var ErrClosed = errors.New("stream: stream is closed")
var ErrBadState = errors.New("stream: operation not valid in this state")

// Callbacks is one registration per event class for a stream. A nil entry
// drops its class.
type Callbacks struct {
	OnRead			func(ReadData)
	OnRead2			func(Read2Data)
	OnWrite			func(WriteCompleted)
	OnShutdown		func(ShutdownCompleted)
	OnConnect		func(ConnectCompleted)
	OnConnection	func(IncomingConnection)
	OnClose			func(Closed)
}

type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateListening
	StateClosed
)

type opClass uint8

const (
	classWrite opClass = iota
	classShutdown
	classConnect
)

type pendingOp struct {
	class	opClass
	context	any
}

// Stream multiplexes raw native callbacks for one stream into typed events
// and forwards them to its registered callbacks. All methods run on the loop
// goroutine; nothing here is safe for concurrent use.
//
// One-shot operations (write, shutdown, connect) queue a pendingOp at start
// and pop it at completion, so every started operation produces exactly one
// completion event, with its context returned unchanged - including the
// ECANCELED drain when the stream closes with operations still pending.
type Stream struct {
	log		slog.Logger
	cbs		Callbacks
	state	State
	reading	bool
	pending	*queue.Queue
	dropped	int	// events discarded after Closed
}

func createStream(cbs Callbacks) *Stream {
	return &Stream {
		log: 		*slog.With("src", "Stream"),
		cbs: 		cbs,
		state: 		StateIdle,
		pending: 	queue.New(),
	}
}

func (s *Stream) State() State { return s.state }

// Dropped counts native events that arrived after the terminal Closed.
func (s *Stream) Dropped() int { return s.dropped }

// ---- connection-oriented flow ----

func (s *Stream) StartConnect(ctx any) error {
	if s.state == StateClosed { return ErrClosed }
	if s.state != StateIdle { return ErrBadState }
	s.state = StateConnecting
	s.pending.Add(pendingOp{class: classConnect, context: ctx})
	return nil
}

func (s *Stream) CompleteConnect(code unix.Errno) {
	if s.drop() { return }
	if code == 0 {
		s.state = StateConnected
	} else {
		s.state = StateIdle
	}
	s.completeOne(classConnect, code)
}

func (s *Stream) Listen() error {
	if s.state == StateClosed { return ErrClosed }
	if s.state != StateIdle { return ErrBadState }
	s.state = StateListening
	return nil
}

// InjectConnection is recurring for the lifetime of a listening stream.
func (s *Stream) InjectConnection(code unix.Errno, sa unix.Sockaddr) {
	if s.drop() { return }
	if s.state != StateListening {
		s.log.Warn("connection event outside listening state", "state", s.state)
		return
	}
	if s.cbs.OnConnection != nil {
		s.cbs.OnConnection(IncomingConnection{Code: code, Peer: AddrFrom(sa)})
	}
}

// ---- reads (recurring) ----

func (s *Stream) StartRead() error {
	if s.state == StateClosed { return ErrClosed }
	if s.state == StateListening { return ErrBadState }
	s.reading = true
	return nil
}

func (s *Stream) StopRead() {
	s.reading = false
}

func (s *Stream) InjectRead(code unix.Errno, data []byte) {
	if s.drop() || !s.reading { return }
	if s.cbs.OnRead != nil {
		s.cbs.OnRead(ReadData{Code: code, Data: data})
	}
}

func (s *Stream) InjectRead2(code unix.Errno, data []byte, pending HandleType) {
	if s.drop() || !s.reading { return }
	if s.cbs.OnRead2 != nil {
		s.cbs.OnRead2(Read2Data{Code: code, Data: data, Pending: pending})
	}
}

// ---- one-shot operations ----

// StartWrite on a closed stream is refused outright; a refused operation was
// never started, so no completion event follows.
func (s *Stream) StartWrite(ctx any) error {
	if s.state == StateClosed { return ErrClosed }
	s.pending.Add(pendingOp{class: classWrite, context: ctx})
	return nil
}

func (s *Stream) CompleteWrite(code unix.Errno) {
	if s.drop() { return }
	s.completeOne(classWrite, code)
}

func (s *Stream) StartShutdown(ctx any) error {
	if s.state == StateClosed { return ErrClosed }
	s.pending.Add(pendingOp{class: classShutdown, context: ctx})
	return nil
}

func (s *Stream) CompleteShutdown(code unix.Errno) {
	if s.drop() { return }
	s.completeOne(classShutdown, code)
}

// ---- teardown ----

// Close drains every pending one-shot with ECANCELED, then delivers the
// terminal Closed exactly once. After this, all further native events for
// the stream are discarded.
func (s *Stream) Close() {
	if s.state == StateClosed { return }
	s.state = StateClosed
	s.reading = false

	for s.pending.Length() > 0 {
		p := s.pending.Remove().(pendingOp)
		s.emit(p, unix.ECANCELED)
	}

	if s.cbs.OnClose != nil {
		s.cbs.OnClose(Closed{})
	}
}

func (s *Stream) drop() bool {
	if s.state == StateClosed {
		s.dropped++
		return true
	}
	return false
}

func (s *Stream) completeOne(class opClass, code unix.Errno) {
	if s.pending.Length() == 0 {
		s.log.Warn("completion with nothing pending", "class", class)
		return
	}
	p := s.pending.Remove().(pendingOp)
	// a completion must match the oldest started operation of its class
	assert.Equal(p.class, class, "stream completion class mismatch")
	s.emit(p, code)
}

func (s *Stream) emit(p pendingOp, code unix.Errno) {
	switch p.class {
	case classWrite:
		if s.cbs.OnWrite != nil {
			s.cbs.OnWrite(WriteCompleted{Code: code, Context: p.context})
		}
	case classShutdown:
		if s.cbs.OnShutdown != nil {
			s.cbs.OnShutdown(ShutdownCompleted{Code: code, Context: p.context})
		}
	case classConnect:
		if s.cbs.OnConnect != nil {
			s.cbs.OnConnect(ConnectCompleted{Code: code, Context: p.context})
		}
	}
}

// Bridge hands out stream slots and routes raw native callbacks by id.
type Bridge struct {
	log		slog.Logger
	streams	*util.Registry[*Stream]
}

func CreateBridge(slots int) *Bridge {
	return &Bridge {
		log: 		*slog.With("src", "StreamBridge"),
		streams: 	util.CreateRegistry[*Stream](slots),
	}
}

func (b *Bridge) Attach(cbs Callbacks) (int, *Stream, error) {
	s := createStream(cbs)
	id, ok := b.streams.Acquire(s)
	if !ok { return 0, nil, ErrSlotsFull }
	return id, s, nil
}

func (b *Bridge) Get(id int) (*Stream, bool) {
	return b.streams.Get(id)
}

// Detach closes the stream (delivering Closed if it has not been delivered
// yet) and frees its slot.
func (b *Bridge) Detach(id int) {
	s, ok := b.streams.Get(id)
	if !ok { return }
	s.Close()
	b.streams.Release(id)
}
