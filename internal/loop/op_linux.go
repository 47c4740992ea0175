//go:build linux

package loop

import (
	"golang.org/x/sys/unix"
)

type OpCode uint16

const (
	OpNop OpCode = iota
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpUnlink
	OpMkdir
	OpRmdir
	OpReaddir
	OpStat
	OpLstat
	OpFstat
	OpRename
	OpFsync
	OpFdatasync
	OpFtruncate
	OpSendfile
	OpChmod
	OpFchmod
	OpChown
	OpFchown
	OpUtime
	OpFutime
	OpLink
	OpSymlink
	OpReadlink
)

// Op is one submission descriptor. The submitting side fills the argument
// fields for its opcode and leaves the rest zero; the loop fills the
// completion fields and then calls Sink exactly once, on the loop goroutine.
//
// WARN: an Op must not be touched by the submitter between Submit and Sink.
type Op struct {
	Opcode	OpCode

	// arguments (per opcode)
	Fd		int
	Fd2		int		// sendfile source
	Path	string
	Path2	string	// rename/link/symlink destination
	Buf		[]byte	// read destination / write source, stable for the flight
	Len		uint32
	Off		int64	// file position; < 0 means current position
	Flags	int
	Mode	uint32
	Uid		int
	Gid		int
	Atime	float64
	Mtime	float64

	// completion
	Res		int64		// fd/byte count/name count, or the -1 sentinel
	Errno	unix.Errno	// valid iff Res is the sentinel
	Ptr		any			// *unix.Stat_t, or []byte for readlink/readdir

	// Sink receives the completed Op on the loop goroutine.
	Sink	func(op *Op)

	// Data rides along untouched (the bridge's Request).
	Data	any
}
