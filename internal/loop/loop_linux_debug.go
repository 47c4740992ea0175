//go:build linux

package loop

import (
	"fmt"
	"strings"
)

var opcodeNames = [...]string{
	"NOP", "OPEN", "CLOSE", "READ", "WRITE", "UNLINK", "MKDIR", "RMDIR",
	"READDIR", "STAT", "LSTAT", "FSTAT", "RENAME", "FSYNC", "FDATASYNC",
	"FTRUNCATE", "SENDFILE", "CHMOD", "FCHMOD", "CHOWN", "FCHOWN", "UTIME",
	"FUTIME", "LINK", "SYMLINK", "READLINK",
}

func (o OpCode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("OPCODE(%d)", uint16(o))
}

func (o *Op) String() string {
	if o == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Op | %v Fd: 0x%x Res: %d Errno: %d", o.Opcode, o.Fd, o.Res, o.Errno)
	if o.Path != "" {
		fmt.Fprintf(&b, " Path: %q", o.Path)
	}
	if o.Path2 != "" {
		fmt.Fprintf(&b, " Path2: %q", o.Path2)
	}
	if o.Buf != nil {
		fmt.Fprintf(&b, " | Buf: @%p Len: 0x%08x Off: 0x%08x", &o.Buf[0], o.Len, o.Off)
	}
	return b.String()
}
