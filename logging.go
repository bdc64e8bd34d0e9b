package aicmd

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// OpenDebugLog installs the default slog logger for interactive use.
// With debug disabled all records are discarded, since the line editor owns
// the terminal. With debug enabled records are appended to the debug log.
// The returned closer must be closed on exit.
func OpenDebugLog(cfg *Config) (io.Closer, error) {
	if cfg == nil || !cfg.Debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return io.NopCloser(nil), nil
	}

	path := cfg.DebugLog
	if path == "" {
		path = DefaultDebugLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	slog.Debug("debug log opened", "provider", cfg.Provider)
	return f, nil
}
