package fsbridge

import (
	c "loopio/internal"
	"loopio/internal/loop"

	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func Test_Decode_Readdir_Names(t *testing.T) {
	req := createRequest(loop.OpReaddir, 0, "/some/dir")
	flat := []byte("a\x00bb\x00c\x00")

	out := decode(req, 3, 0, flat)
	assert.Equal(t, TextList{Names: []string{"a", "bb", "c"}}, out)
}

func Test_Decode_Readdir_Ignores_Trailing_Garbage(t *testing.T) {
	req := createRequest(loop.OpReaddir, 0, "/some/dir")
	flat := []byte("a\x00bb\x00c\x00GARBAGE")

	out := decode(req, 3, 0, flat)
	assert.Equal(t, TextList{Names: []string{"a", "bb", "c"}}, out)
}

func Test_Decode_Readdir_Empty(t *testing.T) {
	req := createRequest(loop.OpReaddir, 0, "/some/dir")

	out := decode(req, 0, 0, []byte{})
	assert.Equal(t, TextList{Names: []string{}}, out)
}

func Test_Decode_Error_Sentinel_Beats_Kind(t *testing.T) {
	for _, kind := range []loop.OpCode{
		loop.OpOpen, loop.OpRead, loop.OpWrite, loop.OpStat, loop.OpReaddir,
		loop.OpClose, loop.OpReadlink,
	} {
		req := createRequest(kind, 0, "/missing")
		out := decode(req, c.FAIL, unix.ENOENT, nil)

		fail, ok := out.(Fail)
		assert.True(t, ok, "kind %v", kind)
		assert.Equal(t, unix.ENOENT, fail.Err.Code)
		assert.Equal(t, "/missing", fail.Err.Path)
		assert.NotEmpty(t, fail.Err.Message)
	}
}

func Test_Decode_Open_Fd(t *testing.T) {
	req := createRequest(loop.OpOpen, 0, "/etc/hostname")
	out := decode(req, 7, 0, nil)
	assert.Equal(t, Int{Value: 7}, out)
}

func Test_Decode_Write_Count(t *testing.T) {
	req, err := createWriteRequest(0, []byte("hello"), 5, 0)
	assert.NoError(t, err)
	out := decode(req, 5, 0, nil)
	assert.Equal(t, Long{Value: 5}, out)
}

func Test_Decode_Unit_Kinds(t *testing.T) {
	for _, kind := range []loop.OpCode{
		loop.OpClose, loop.OpRename, loop.OpUnlink, loop.OpRmdir, loop.OpMkdir,
		loop.OpFtruncate, loop.OpFsync, loop.OpFdatasync, loop.OpLink,
		loop.OpSymlink, loop.OpChmod, loop.OpFchmod, loop.OpChown, loop.OpFchown,
	} {
		req := createRequest(kind, 0, "")
		assert.Equal(t, Unit{}, decode(req, 0, 0, nil), "kind %v", kind)
	}
}

func Test_Decode_Read_Truncates_To_Count(t *testing.T) {
	dst := make([]byte, 16)
	req, err := createReadRequest(0, dst, 16, 0)
	assert.NoError(t, err)
	copy(req.buf, "abcdefgh????????")

	out := decode(req, 8, 0, nil)
	b := out.(Bytes)
	assert.Equal(t, int64(8), b.Count)
	assert.Equal(t, []byte("abcdefgh"), b.Data)
}

func Test_Decode_Stat_Millis(t *testing.T) {
	req := createRequest(loop.OpStat, 0, "/tmp")
	raw := &unix.Stat_t{
		Dev:   3,
		Ino:   77,
		Mode:  0o100644,
		Nlink: 2,
		Uid:   1000,
		Gid:   1000,
		Size:  4096,
		Atim:  unix.Timespec{Sec: 1234, Nsec: 999_999_999},
		Mtim:  unix.Timespec{Sec: 5678, Nsec: 1},
		Ctim:  unix.Timespec{Sec: 1, Nsec: 0},
	}

	out := decode(req, 0, 0, raw)
	st := out.(Stat)
	// exact seconds*1000, nanoseconds dropped
	assert.Equal(t, int64(1234000), st.Atime)
	assert.Equal(t, int64(5678000), st.Mtime)
	assert.Equal(t, int64(1000), st.Ctime)
	assert.Equal(t, uint64(77), st.Ino)
	assert.Equal(t, int64(4096), st.Size)
}

func Test_Decode_Readlink_Text(t *testing.T) {
	req := createRequest(loop.OpReadlink, 0, "/some/link")
	out := decode(req, 11, 0, []byte("/the/target\x00"))
	assert.Equal(t, Text{Value: "/the/target"}, out)
}
