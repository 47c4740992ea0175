package fsbridge

import (
	c "loopio/internal"
	"loopio/internal/loop"

	"bytes"
	"fmt"

	"github.com/negrel/assert"
	"golang.org/x/sys/unix"
)

// decode maps a raw completion onto its typed Outcome. Whenever the raw
// status is the failure sentinel the result is a Fail regardless of kind,
// with the path pulled from the originating request when it has one. The
// kind switch is exhaustive; a kind we do not know here is a bridge bug, not
// something to hand to the caller.
func decode(req *Request, res int64, errno unix.Errno, ptr any) Outcome {
	if res == c.FAIL {
		return Fail{Err: &OSError{
			Code: 		errno,
			Message: 	errno.Error(),
			Path: 		req.path,
		}}
	}

	switch req.kind {
	case loop.OpClose, loop.OpRename, loop.OpUnlink, loop.OpRmdir, loop.OpMkdir,
		loop.OpFtruncate, loop.OpFsync, loop.OpFdatasync, loop.OpLink,
		loop.OpSymlink, loop.OpChmod, loop.OpFchmod, loop.OpChown, loop.OpFchown:
		return Unit{}

	case loop.OpOpen:
		return Int{Value: int32(res)}

	case loop.OpWrite, loop.OpUtime, loop.OpFutime, loop.OpSendfile:
		return Long{Value: res}

	case loop.OpRead:
		return Bytes{Count: res, Data: req.buf[:res]}

	case loop.OpStat, loop.OpLstat, loop.OpFstat:
		return statFromRaw(ptr.(*unix.Stat_t))

	case loop.OpReadlink:
		buf := ptr.([]byte)
		end := bytes.IndexByte(buf, 0)
		assert.GreaterOrEqual(end, 0, "readlink buffer not NUL-terminated")
		return Text{Value: string(buf[:end])}

	case loop.OpReaddir:
		return decodeNames(ptr.([]byte), int(res))
	}

	panic(fmt.Sprintf("fsbridge: unhandled completion kind %v", req.kind))
}

// The raw readdir result is a flat buffer of NUL-separated names. Exactly
// count names are taken and nothing past them is read, even if the buffer
// has trailing garbage. A name boundary that is not a NUL is a bridge bug.
func decodeNames(flat []byte, count int) TextList {
	names := make([]string, 0, count)
	p := 0
	for range count {
		n := bytes.IndexByte(flat[p:], 0)
		assert.GreaterOrEqual(n, 0, "readdir name boundary not NUL-aligned")
		names = append(names, string(flat[p:p+n]))
		p += n + 1
	}
	return TextList{Names: names}
}

func statFromRaw(st *unix.Stat_t) Stat {
	// explicit widening, the raw field widths differ between architectures
	return Stat{
		Dev: 		uint64(st.Dev),
		Ino: 		uint64(st.Ino),
		Mode: 		uint32(st.Mode),
		Nlink: 		uint64(st.Nlink),
		Uid: 		uint32(st.Uid),
		Gid: 		uint32(st.Gid),
		Rdev: 		uint64(st.Rdev),
		Size: 		int64(st.Size),
		Blksize: 	int64(st.Blksize),
		Blocks: 	int64(st.Blocks),
		// raw seconds to milliseconds, sub-second precision is dropped
		Atime: 		st.Atim.Sec * c.MS_PER_SEC,
		Mtime: 		st.Mtim.Sec * c.MS_PER_SEC,
		Ctime: 		st.Ctim.Sec * c.MS_PER_SEC,
	}
}
