//go:build linux

package loop

import (
	c "loopio/internal"

	"golang.org/x/sys/unix"
)

// Pure OS-call plumbing. Each case runs the blocking call for op and fills
// the completion fields. Runs on a pool worker for async submissions, or
// directly on the caller's goroutine for synchronous execution.
func ExecOp(op *Op, scratch []byte) {
	if scratch == nil {
		scratch = make([]byte, c.SCRATCH_LEN)
	}

	switch op.Opcode {
	case OpNop:
		op.Res = 0

	case OpOpen:
		fd, err := unix.Open(op.Path, op.Flags, op.Mode)
		finish(op, int64(fd), err)

	case OpClose:
		finish(op, 0, unix.Close(op.Fd))

	case OpRead:
		var n int
		var err error
		if op.Off < 0 {
			n, err = unix.Read(op.Fd, op.Buf[:op.Len])
		} else {
			n, err = unix.Pread(op.Fd, op.Buf[:op.Len], op.Off)
		}
		finish(op, int64(n), err)

	case OpWrite:
		var n int
		var err error
		if op.Off < 0 {
			n, err = unix.Write(op.Fd, op.Buf[:op.Len])
		} else {
			n, err = unix.Pwrite(op.Fd, op.Buf[:op.Len], op.Off)
		}
		finish(op, int64(n), err)

	case OpUnlink:
		finish(op, 0, unix.Unlink(op.Path))

	case OpMkdir:
		finish(op, 0, unix.Mkdir(op.Path, op.Mode))

	case OpRmdir:
		finish(op, 0, unix.Rmdir(op.Path))

	case OpReaddir:
		execReaddir(op, scratch)

	case OpStat:
		st := new(unix.Stat_t)
		err := unix.Stat(op.Path, st)
		op.Ptr = st
		finish(op, 0, err)

	case OpLstat:
		st := new(unix.Stat_t)
		err := unix.Lstat(op.Path, st)
		op.Ptr = st
		finish(op, 0, err)

	case OpFstat:
		st := new(unix.Stat_t)
		err := unix.Fstat(op.Fd, st)
		op.Ptr = st
		finish(op, 0, err)

	case OpRename:
		finish(op, 0, unix.Rename(op.Path, op.Path2))

	case OpFsync:
		finish(op, 0, unix.Fsync(op.Fd))

	case OpFdatasync:
		finish(op, 0, unix.Fdatasync(op.Fd))

	case OpFtruncate:
		finish(op, 0, unix.Ftruncate(op.Fd, op.Off))

	case OpSendfile:
		off := op.Off
		n, err := unix.Sendfile(op.Fd, op.Fd2, &off, int(op.Len))
		finish(op, int64(n), err)

	case OpChmod:
		finish(op, 0, unix.Chmod(op.Path, op.Mode))

	case OpFchmod:
		finish(op, 0, unix.Fchmod(op.Fd, op.Mode))

	case OpChown:
		finish(op, 0, unix.Chown(op.Path, op.Uid, op.Gid))

	case OpFchown:
		finish(op, 0, unix.Fchown(op.Fd, op.Uid, op.Gid))

	case OpUtime:
		tv := []unix.Timeval{timevalFromSec(op.Atime), timevalFromSec(op.Mtime)}
		finish(op, 0, unix.Utimes(op.Path, tv))

	case OpFutime:
		tv := []unix.Timeval{timevalFromSec(op.Atime), timevalFromSec(op.Mtime)}
		finish(op, 0, unix.Futimes(op.Fd, tv))

	case OpLink:
		finish(op, 0, unix.Link(op.Path, op.Path2))

	case OpSymlink:
		finish(op, 0, unix.Symlink(op.Path, op.Path2))

	case OpReadlink:
		n, err := unix.Readlink(op.Path, scratch)
		if err != nil {
			finish(op, 0, err)
			break
		}
		// NUL-terminated private copy, scratch is reused by the next op
		buf := make([]byte, n+1)
		copy(buf, scratch[:n])
		op.Ptr = buf
		finish(op, int64(n), nil)

	default:
		op.Res = c.FAIL
		op.Errno = unix.EINVAL
	}
}

// The readdir wire format: a flat buffer of NUL-terminated names plus a name
// count in Res.
func execReaddir(op *Op, scratch []byte) {
	fd, err := unix.Open(op.Path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		finish(op, 0, err)
		return
	}
	defer unix.Close(fd)

	var names []string
	for {
		n, err := unix.Getdents(fd, scratch)
		if err != nil {
			finish(op, 0, err)
			return
		}
		if n == 0 { break }
		_, _, names = unix.ParseDirent(scratch[:n], -1, names)
	}

	flat := make([]byte, 0, len(names)*16)
	for _, name := range names {
		flat = append(flat, name...)
		flat = append(flat, 0)
	}
	op.Ptr = flat
	finish(op, int64(len(names)), nil)
}

func finish(op *Op, res int64, err error) {
	if err != nil {
		op.Res = c.FAIL
		op.Errno = errnoOf(err)
		return
	}
	op.Res = res
	op.Errno = 0
}

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}

func timevalFromSec(s float64) unix.Timeval {
	sec := int64(s)
	usec := int64((s - float64(sec)) * 1e6)
	return unix.Timeval{Sec: sec, Usec: usec}
}
