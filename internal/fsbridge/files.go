package fsbridge

import (
	"loopio/internal/loop"

	"fmt"
	"math"
)

// Files is the operation front-end of the bridge. Every kind comes in two
// explicit forms sharing the same Request/decode core: the plain form blocks
// the calling goroutine and returns the result directly, never touching the
// callback registry; the Async form queues the operation and completes
// through the dispatcher exactly once. The two forms must not be mixed for
// one request.
type Files struct {
	loop	*loop.Loop
	disp	*Dispatcher
}

func CreateFiles(l *loop.Loop, d *Dispatcher) *Files {
	return &Files {
		loop: 	l,
		disp: 	d,
	}
}

// sync core: run the OS call on the caller's goroutine, decode, release
func execSync(req *Request, op *loop.Op) (Outcome, error) {
	loop.ExecOp(op, nil)
	out := decode(req, op.Res, op.Errno, op.Ptr)
	if fail, ok := out.(Fail); ok {
		req.release()
		return nil, fail.Err
	}
	if b, ok := out.(Bytes); ok && req.dst != nil {
		copy(req.dst[req.off:], b.Data)
	}
	req.release()
	return out, nil
}

// async core: the completion sink decodes on the loop goroutine and hands
// the outcome to the dispatcher, which frees the request
func (f *Files) submit(req *Request, op *loop.Op) error {
	op.Data = req
	op.Sink = func(op *loop.Op) {
		req := op.Data.(*Request)
		f.disp.deliver(req, decode(req, op.Res, op.Errno, op.Ptr))
	}
	if err := f.loop.Submit(op); err != nil {
		req.release()
		return err
	}
	return nil
}

func (f *Files) execUnit(op *loop.Op, path string) error {
	_, err := execSync(createRequest(op.Opcode, 0, path), op)
	return err
}

func (f *Files) submitOp(op *loop.Op, path string, token int) error {
	return f.submit(createRequest(op.Opcode, token, path), op)
}

// ---- open / close ----

func (f *Files) Open(path string, flags int, mode uint32) (int, error) {
	req := createRequest(loop.OpOpen, 0, path)
	out, err := execSync(req, &loop.Op{Opcode: loop.OpOpen, Path: path, Flags: flags, Mode: mode})
	if err != nil { return -1, err }
	return int(out.(Int).Value), nil
}

func (f *Files) OpenAsync(path string, flags int, mode uint32, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpOpen, Path: path, Flags: flags, Mode: mode}, path, token)
}

func (f *Files) Close(fd int) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpClose, Fd: fd}, "")
}

func (f *Files) CloseAsync(fd int, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpClose, Fd: fd}, "", token)
}

// ---- read / write ----

// Read fills dst[offset:length] from position and returns the byte count.
// position < 0 reads from the current file offset.
func (f *Files) Read(fd int, dst []byte, length int64, offset int64, position int64) (int64, error) {
	req, err := createReadRequest(0, dst, length, offset)
	if err != nil { return -1, err }
	out, err := execSync(req, readOp(fd, req, position))
	if err != nil { return -1, err }
	return out.(Bytes).Count, nil
}

// ReadAsync queues a read. dst must stay allocated until the completion
// arrives; data lands in it only at delivery, never while in flight.
func (f *Files) ReadAsync(fd int, dst []byte, length int64, offset int64, position int64, token int) error {
	req, err := createReadRequest(token, dst, length, offset)
	if err != nil { return err }
	return f.submit(req, readOp(fd, req, position))
}

func readOp(fd int, req *Request, position int64) *loop.Op {
	return &loop.Op{Opcode: loop.OpRead, Fd: fd, Buf: req.buf, Len: uint32(len(req.buf)), Off: position}
}

// Write submits src[offset:offset+length] at position and returns the byte
// count written.
func (f *Files) Write(fd int, src []byte, length int64, offset int64, position int64) (int64, error) {
	req, err := createWriteRequest(0, src, length, offset)
	if err != nil { return -1, err }
	out, err := execSync(req, writeOp(fd, req, position))
	if err != nil { return -1, err }
	return out.(Long).Value, nil
}

// WriteAsync copies the source bytes out before returning, so the caller may
// mutate src freely once this call is back.
func (f *Files) WriteAsync(fd int, src []byte, length int64, offset int64, position int64, token int) error {
	req, err := createWriteRequest(token, src, length, offset)
	if err != nil { return err }
	return f.submit(req, writeOp(fd, req, position))
}

func writeOp(fd int, req *Request, position int64) *loop.Op {
	return &loop.Op{Opcode: loop.OpWrite, Fd: fd, Buf: req.buf, Len: uint32(len(req.buf)), Off: position}
}

// ---- path ops ----

func (f *Files) Unlink(path string) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpUnlink, Path: path}, path)
}

func (f *Files) UnlinkAsync(path string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpUnlink, Path: path}, path, token)
}

func (f *Files) Mkdir(path string, mode uint32) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpMkdir, Path: path, Mode: mode}, path)
}

func (f *Files) MkdirAsync(path string, mode uint32, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpMkdir, Path: path, Mode: mode}, path, token)
}

func (f *Files) Rmdir(path string) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpRmdir, Path: path}, path)
}

func (f *Files) RmdirAsync(path string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpRmdir, Path: path}, path, token)
}

func (f *Files) Readdir(path string) ([]string, error) {
	req := createRequest(loop.OpReaddir, 0, path)
	out, err := execSync(req, &loop.Op{Opcode: loop.OpReaddir, Path: path})
	if err != nil { return nil, err }
	return out.(TextList).Names, nil
}

func (f *Files) ReaddirAsync(path string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpReaddir, Path: path}, path, token)
}

func (f *Files) Rename(path string, newPath string) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpRename, Path: path, Path2: newPath}, path)
}

func (f *Files) RenameAsync(path string, newPath string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpRename, Path: path, Path2: newPath}, path, token)
}

func (f *Files) Link(path string, newPath string) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpLink, Path: path, Path2: newPath}, path)
}

func (f *Files) LinkAsync(path string, newPath string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpLink, Path: path, Path2: newPath}, path, token)
}

func (f *Files) Symlink(path string, newPath string) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpSymlink, Path: path, Path2: newPath}, path)
}

func (f *Files) SymlinkAsync(path string, newPath string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpSymlink, Path: path, Path2: newPath}, path, token)
}

func (f *Files) Readlink(path string) (string, error) {
	req := createRequest(loop.OpReadlink, 0, path)
	out, err := execSync(req, &loop.Op{Opcode: loop.OpReadlink, Path: path})
	if err != nil { return "", err }
	return out.(Text).Value, nil
}

func (f *Files) ReadlinkAsync(path string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpReadlink, Path: path}, path, token)
}

// ---- stat family ----

func (f *Files) Stat(path string) (Stat, error) {
	req := createRequest(loop.OpStat, 0, path)
	out, err := execSync(req, &loop.Op{Opcode: loop.OpStat, Path: path})
	if err != nil { return Stat{}, err }
	return out.(Stat), nil
}

func (f *Files) StatAsync(path string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpStat, Path: path}, path, token)
}

func (f *Files) Lstat(path string) (Stat, error) {
	req := createRequest(loop.OpLstat, 0, path)
	out, err := execSync(req, &loop.Op{Opcode: loop.OpLstat, Path: path})
	if err != nil { return Stat{}, err }
	return out.(Stat), nil
}

func (f *Files) LstatAsync(path string, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpLstat, Path: path}, path, token)
}

func (f *Files) Fstat(fd int) (Stat, error) {
	req := createRequest(loop.OpFstat, 0, "")
	out, err := execSync(req, &loop.Op{Opcode: loop.OpFstat, Fd: fd})
	if err != nil { return Stat{}, err }
	return out.(Stat), nil
}

func (f *Files) FstatAsync(fd int, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFstat, Fd: fd}, "", token)
}

// ---- fd ops ----

func (f *Files) Fsync(fd int) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpFsync, Fd: fd}, "")
}

func (f *Files) FsyncAsync(fd int, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFsync, Fd: fd}, "", token)
}

func (f *Files) Fdatasync(fd int) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpFdatasync, Fd: fd}, "")
}

func (f *Files) FdatasyncAsync(fd int, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFdatasync, Fd: fd}, "", token)
}

func (f *Files) Ftruncate(fd int, offset int64) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpFtruncate, Fd: fd, Off: offset}, "")
}

func (f *Files) FtruncateAsync(fd int, offset int64, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFtruncate, Fd: fd, Off: offset}, "", token)
}

// the length narrows to the op's uint32 field; anything wider is refused up
// front instead of wrapping
func sendfileOp(outFd int, inFd int, offset int64, length int64) (*loop.Op, error) {
	if length < 0 || length > math.MaxUint32 { return nil, ErrInvalidUsage }
	return &loop.Op{Opcode: loop.OpSendfile, Fd: outFd, Fd2: inFd, Off: offset, Len: uint32(length)}, nil
}

func (f *Files) Sendfile(outFd int, inFd int, offset int64, length int64) (int64, error) {
	op, err := sendfileOp(outFd, inFd, offset, length)
	if err != nil { return -1, err }
	out, err := execSync(createRequest(loop.OpSendfile, 0, ""), op)
	if err != nil { return -1, err }
	return out.(Long).Value, nil
}

func (f *Files) SendfileAsync(outFd int, inFd int, offset int64, length int64, token int) error {
	op, err := sendfileOp(outFd, inFd, offset, length)
	if err != nil { return err }
	return f.submitOp(op, "", token)
}

// ---- mode / ownership / times ----

func (f *Files) Chmod(path string, mode uint32) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpChmod, Path: path, Mode: mode}, path)
}

func (f *Files) ChmodAsync(path string, mode uint32, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpChmod, Path: path, Mode: mode}, path, token)
}

func (f *Files) Fchmod(fd int, mode uint32) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpFchmod, Fd: fd, Mode: mode}, "")
}

func (f *Files) FchmodAsync(fd int, mode uint32, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFchmod, Fd: fd, Mode: mode}, "", token)
}

func (f *Files) Chown(path string, uid int, gid int) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpChown, Path: path, Uid: uid, Gid: gid}, path)
}

func (f *Files) ChownAsync(path string, uid int, gid int, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpChown, Path: path, Uid: uid, Gid: gid}, path, token)
}

func (f *Files) Fchown(fd int, uid int, gid int) error {
	return f.execUnit(&loop.Op{Opcode: loop.OpFchown, Fd: fd, Uid: uid, Gid: gid}, "")
}

func (f *Files) FchownAsync(fd int, uid int, gid int, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFchown, Fd: fd, Uid: uid, Gid: gid}, "", token)
}

// Utime takes times in fractional seconds, like the syscall does.
func (f *Files) Utime(path string, atime float64, mtime float64) error {
	req := createRequest(loop.OpUtime, 0, path)
	_, err := execSync(req, &loop.Op{Opcode: loop.OpUtime, Path: path, Atime: atime, Mtime: mtime})
	return err
}

func (f *Files) UtimeAsync(path string, atime float64, mtime float64, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpUtime, Path: path, Atime: atime, Mtime: mtime}, path, token)
}

func (f *Files) Futime(fd int, atime float64, mtime float64) error {
	req := createRequest(loop.OpFutime, 0, "")
	_, err := execSync(req, &loop.Op{Opcode: loop.OpFutime, Fd: fd, Atime: atime, Mtime: mtime})
	return err
}

func (f *Files) FutimeAsync(fd int, atime float64, mtime float64, token int) error {
	return f.submitOp(&loop.Op{Opcode: loop.OpFutime, Fd: fd, Atime: atime, Mtime: mtime}, "", token)
}

// ---- fd path resolution ----

// FdPath resolves the path of an open descriptor via /proc. Synchronous only.
func (f *Files) FdPath(fd int) (string, error) {
	proc := fmt.Sprintf("/proc/self/fd/%d", fd)
	req := createRequest(loop.OpReadlink, 0, proc)
	out, err := execSync(req, &loop.Op{Opcode: loop.OpReadlink, Path: proc})
	if err != nil { return "", err }
	return out.(Text).Value, nil
}
