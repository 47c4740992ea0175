package fsbridge

import (
	"loopio/internal/config"
	"loopio/internal/loop"

	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cespare/xxhash"
	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))
	os.Exit(m.Run())
}

func faker() *gofakeit.Faker {
	seed := [32]byte{7}
	return gofakeit.NewFaker(rand.NewChaCha8(seed), true)
}

func createTestBridge(t *testing.T) (*Files, *Dispatcher) {
	cfg := &config.Config{
		RingEntries:  0x80,
		QueueSize:    0x100,
		PoolWorkers:  2,
		RegistrySize: 0x40,
		StreamSlots:  0x40,
		LogLevel:     slog.LevelDebug,
	}
	m, err := loop.CreateLoop(cfg)
	if err != nil { t.Skipf("no io_uring here: %v", err) }
	t.Cleanup(m.Close)

	d := CreateDispatcher(cfg.RegistrySize)
	return CreateFiles(m, d), d
}

func tempfile(t *testing.T) string {
	return filepath.Join(t.TempDir(), fmt.Sprintf("bridge%08x.tmp", rand.Uint32()))
}

type completion struct {
	kind	loop.OpCode
	token	int
	out		Outcome
}

func collector(d *Dispatcher, t *testing.T) (int, chan completion) {
	ch := make(chan completion, 0x40)
	token, err := d.Register(func(kind loop.OpCode, tok int, out Outcome) {
		ch <- completion{kind, tok, out}
	})
	if err != nil { t.Fatal(err) }
	return token, ch
}

func await(t *testing.T, ch chan completion) completion {
	select {
	case cm := <-ch:
		return cm
	case <-time.After(5 * time.Second):
		t.Fatal("completion never arrived")
		return completion{}
	}
}

func Test_Files_Sync_Roundtrip(t *testing.T) {
	f, _ := createTestBridge(t)
	fp := tempfile(t)

	content := []byte(faker().Paragraph(4, 8, 12, " "))

	fd, err := f.Open(fp, unix.O_RDWR|unix.O_CREAT, 0o640)
	assert.NoError(t, err)

	n, err := f.Write(fd, content, int64(len(content)), 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	st, err := f.Fstat(fd)
	assert.NoError(t, err)
	assert.Equal(t, int64(len(content)), st.Size)

	back := make([]byte, len(content))
	n, err = f.Read(fd, back, int64(len(back)), 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, xxhash.Sum64(content), xxhash.Sum64(back))

	assert.NoError(t, f.Ftruncate(fd, 10))
	st, err = f.Fstat(fd)
	assert.NoError(t, err)
	assert.Equal(t, int64(10), st.Size)

	assert.NoError(t, f.Fsync(fd))
	assert.NoError(t, f.Close(fd))
}

func Test_Files_Read_Copyout_At_Offset(t *testing.T) {
	f, _ := createTestBridge(t)
	fp := tempfile(t)

	fd, err := f.Open(fp, unix.O_RDWR|unix.O_CREAT, 0o640)
	assert.NoError(t, err)
	defer f.Close(fd)

	_, err = f.Write(fd, []byte("0123456789"), 10, 0, 0)
	assert.NoError(t, err)

	dst := make([]byte, 32)
	// effective read size is length-offset
	n, err := f.Read(fd, dst, 24, 16, 0)
	assert.NoError(t, err)
	assert.LessOrEqual(t, n, int64(24-16))
	assert.Equal(t, int64(8), n)
	assert.Equal(t, []byte("01234567"), dst[16:24])
	// untouched outside the target window
	assert.Equal(t, make([]byte, 16), dst[:16])
}

func Test_Files_Write_Copy_Before_Return(t *testing.T) {
	f, d := createTestBridge(t)
	fp := tempfile(t)
	token, ch := collector(d, t)

	fd, err := f.Open(fp, unix.O_RDWR|unix.O_CREAT, 0o640)
	assert.NoError(t, err)
	defer f.Close(fd)

	src := []byte("__PAYLOAD__tail")
	want := append([]byte(nil), src[2:11]...)

	assert.NoError(t, f.WriteAsync(fd, src, 9, 2, 0, token))
	// the submitting call is back, the caller may clobber its buffer
	for i := range src {
		src[i] = 'X'
	}

	cm := await(t, ch)
	assert.Equal(t, loop.OpWrite, cm.kind)
	assert.Equal(t, int64(9), cm.out.(Long).Value)

	back := make([]byte, 9)
	n, err := f.Read(fd, back, 9, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, want, back)
}

func Test_Files_Sync_Error_Has_Path(t *testing.T) {
	f, _ := createTestBridge(t)
	missing := filepath.Join(t.TempDir(), "missing")

	_, err := f.Open(missing, unix.O_RDONLY, 0)
	var osErr *OSError
	assert.ErrorAs(t, err, &osErr)
	assert.Equal(t, unix.ENOENT, osErr.Code)
	assert.Equal(t, missing, osErr.Path)
}

func Test_Files_Submission_Rejections(t *testing.T) {
	f, d := createTestBridge(t)
	token, ch := collector(d, t)

	dst := make([]byte, 4)
	_, err := f.Read(3, dst, 8, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	err = f.ReadAsync(3, dst, 8, 0, 0, token)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	err = f.WriteAsync(3, []byte("abc"), 3, 1, 0, token)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	_, err = f.Write(3, []byte("abc"), -1, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	// lengths beyond the 32-bit op field must not wrap
	_, err = f.Sendfile(4, 3, 0, int64(1)<<32)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	err = f.SendfileAsync(4, 3, 0, int64(1)<<32, token)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	_, err = f.Sendfile(4, 3, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidUsage)

	// nothing was submitted, so nothing may complete
	select {
	case cm := <-ch:
		t.Fatalf("unexpected completion %v", cm.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_Files_Async_Exactly_Once(t *testing.T) {
	f, d := createTestBridge(t)
	dir := t.TempDir()
	token, ch := collector(d, t)

	fp := filepath.Join(dir, "data")
	fd, err := f.Open(fp, unix.O_RDWR|unix.O_CREAT, 0o640)
	assert.NoError(t, err)
	defer f.Close(fd)

	submitted := 0
	for i := range 8 {
		assert.NoError(t, f.MkdirAsync(filepath.Join(dir, fmt.Sprintf("d%02d", i)), 0o750, token))
		submitted++
	}
	payload := []byte(faker().HipsterSentence())
	for range 4 {
		assert.NoError(t, f.WriteAsync(fd, payload, int64(len(payload)), 0, 0, token))
		submitted++
	}
	assert.NoError(t, f.StatAsync(dir, token))
	submitted++

	for range submitted {
		cm := await(t, ch)
		assert.Equal(t, token, cm.token)
		_, failed := cm.out.(Fail)
		assert.False(t, failed)
	}

	// and not a single one more
	select {
	case cm := <-ch:
		t.Fatalf("extra completion %v", cm.kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func Test_Files_Dir_Ops(t *testing.T) {
	f, _ := createTestBridge(t)
	dir := t.TempDir()

	sub := filepath.Join(dir, "sub")
	assert.NoError(t, f.Mkdir(sub, 0o750))

	for _, name := range []string{"a", "bb", "ccc"} {
		fd, err := f.Open(filepath.Join(sub, name), unix.O_WRONLY|unix.O_CREAT, 0o640)
		assert.NoError(t, err)
		assert.NoError(t, f.Close(fd))
	}

	names, err := f.Readdir(sub)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "bb", "ccc"}, names)

	target := filepath.Join(sub, "a")
	ln := filepath.Join(dir, "ln")
	assert.NoError(t, f.Symlink(target, ln))
	got, err := f.Readlink(ln)
	assert.NoError(t, err)
	assert.Equal(t, target, got)

	hard := filepath.Join(dir, "hard")
	assert.NoError(t, f.Link(target, hard))
	st, err := f.Stat(hard)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), st.Nlink)

	moved := filepath.Join(dir, "moved")
	assert.NoError(t, f.Rename(hard, moved))
	_, err = f.Lstat(hard)
	assert.Error(t, err)

	assert.NoError(t, f.Chmod(moved, 0o600))
	st, err = f.Stat(moved)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0o600), st.Mode&0o777)

	assert.NoError(t, f.Utime(moved, 1234, 5678))
	st, err = f.Stat(moved)
	assert.NoError(t, err)
	assert.Equal(t, int64(1234000), st.Atime)
	assert.Equal(t, int64(5678000), st.Mtime)

	assert.NoError(t, f.Unlink(moved))
	assert.NoError(t, f.Unlink(ln))
	for _, name := range []string{"a", "bb", "ccc"} {
		assert.NoError(t, f.Unlink(filepath.Join(sub, name)))
	}
	assert.NoError(t, f.Rmdir(sub))
}

func Test_Files_Sendfile(t *testing.T) {
	f, _ := createTestBridge(t)
	dir := t.TempDir()

	content := []byte(faker().Paragraph(2, 4, 10, " "))
	srcPath := filepath.Join(dir, "src")
	assert.NoError(t, os.WriteFile(srcPath, content, 0o640))

	in, err := f.Open(srcPath, unix.O_RDONLY, 0)
	assert.NoError(t, err)
	defer f.Close(in)

	out, err := f.Open(filepath.Join(dir, "dst"), unix.O_RDWR|unix.O_CREAT, 0o640)
	assert.NoError(t, err)
	defer f.Close(out)

	n, err := f.Sendfile(out, in, 0, int64(len(content)))
	assert.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	back, err := os.ReadFile(filepath.Join(dir, "dst"))
	assert.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(content), xxhash.Sum64(back))
}

func Test_Files_FdPath(t *testing.T) {
	f, _ := createTestBridge(t)
	fp := tempfile(t)

	fd, err := f.Open(fp, unix.O_RDWR|unix.O_CREAT, 0o640)
	assert.NoError(t, err)
	defer f.Close(fd)

	got, err := f.FdPath(fd)
	assert.NoError(t, err)
	assert.Equal(t, fp, got)
}
