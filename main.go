package main

import (
	"loopio/internal/config"
	"loopio/internal/fsbridge"
	"loopio/internal/loop"

	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sys/unix"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.TimeOnly,
	})))

	slog.Info("loopio", "workers", cfg.PoolWorkers, "ring", cfg.RingEntries)

	m, err := loop.CreateLoop(cfg)
	if err != nil {
		slog.Error("loop", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	disp := fsbridge.CreateDispatcher(cfg.RegistrySize)
	files := fsbridge.CreateFiles(m, disp)

	done := make(chan struct{})
	token, err := disp.Register(func(kind loop.OpCode, token int, out fsbridge.Outcome) {
		if fail, ok := out.(fsbridge.Fail); ok {
			slog.Error("completion", "kind", kind, "err", fail.Err)
		} else {
			slog.Info("completion", "kind", kind, "outcome", out)
		}
		done <- struct{}{}
	})
	if err != nil {
		slog.Error("register", "err", err)
		os.Exit(1)
	}
	defer disp.Deregister(token)

	fp := filepath.Join(os.TempDir(), "loopio-demo.tmp")
	defer os.Remove(fp)

	fd, err := files.Open(fp, unix.O_RDWR|unix.O_CREAT, 0o640)
	if err != nil {
		slog.Error("open", "err", err)
		os.Exit(1)
	}
	defer files.Close(fd)

	payload := []byte("hello from the loop\n")
	if err := files.WriteAsync(fd, payload, int64(len(payload)), 0, 0, token); err != nil {
		slog.Error("write submit", "err", err)
		os.Exit(1)
	}
	<-done

	back := make([]byte, len(payload))
	if err := files.ReadAsync(fd, back, int64(len(back)), 0, 0, token); err != nil {
		slog.Error("read submit", "err", err)
		os.Exit(1)
	}
	<-done

	slog.Info("readback", "data", string(back))
}
