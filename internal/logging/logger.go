package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Config holds worker logger configuration.
type Config struct {
	Level      slog.Level
	OutputFile string // path to log file (empty = stdout only)
	MaxSize    int64  // max size in bytes before rotation (default: 10MB)
	MaxBackups int    // number of rotated files to keep (default: 3)
	JSONFormat bool
}

// Logger owns the worker's log file handle.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
}

// Setup builds the worker logger and installs it as the slog default, so
// the leaf packages that log through slog.Default() share the same sink.
func Setup(config Config) (*Logger, error) {
	logger, err := NewLogger(config)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.slog)
	return logger, nil
}

// NewLogger creates a logger that writes to stdout and, when configured,
// a size-rotated log file.
func NewLogger(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	logger := &Logger{config: config}

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		if err := logger.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("rotate logs: %w", err)
		}
		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", config.OutputFile, err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: config.Level}
	var handler slog.Handler
	if config.JSONFormat {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger.slog = slog.New(handler)
	return logger, nil
}

// Slog exposes the underlying structured logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// rotateIfNeeded shifts the current file to .1 (and .1 to .2, and so on up
// to MaxBackups) once it exceeds MaxSize.
func (l *Logger) rotateIfNeeded() error {
	if l.config.OutputFile == "" {
		return nil
	}

	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < l.config.MaxSize {
		return nil
	}

	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}
	if err := os.Rename(l.config.OutputFile, l.config.OutputFile+".1"); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return nil
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// WorkerConfig returns the default configuration for the long-running
// worker: JSON to a size-rotated file under dir, plus stdout.
func WorkerConfig(dir string, debug bool) Config {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return Config{
		Level:      level,
		OutputFile: filepath.Join(dir, "newsgraph.log"),
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 3,
		JSONFormat: !debug,
	}
}
