// Package logger builds the process-wide arbor logger from configuration.
// When verbose mode is enabled via the --verbose flag, the level is forced
// to debug so every pipeline step is visible.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/arbor/writers"

	"github.com/custodia-labs/sercha-ingest/internal/config"
)

// DefaultFilePath is used when file output is enabled without a path.
const DefaultFilePath = "logs/sercha-ingest.log"

const (
	timeFormat  = "15:04:05"
	maxFileSize = 100 * 1024 * 1024
	maxBackups  = 3
)

var (
	mu     sync.RWMutex
	global arbor.ILogger
)

// Get returns the process logger, creating a console logger on first use.
func Get() arbor.ILogger {
	mu.RLock()
	if global != nil {
		defer mu.RUnlock()
		return global
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = arbor.NewLogger().WithConsoleWriter(consoleWriter())
	}
	return global
}

// Init builds the logger from cfg, stores it as the process logger and returns it.
func Init(cfg config.LoggingConfig, verbose bool) arbor.ILogger {
	l := New(cfg, verbose)

	mu.Lock()
	global = l
	mu.Unlock()

	return l
}

// New builds a logger without touching the process logger.
func New(cfg config.LoggingConfig, verbose bool) arbor.ILogger {
	l := arbor.NewLogger()

	console, file := outputs(cfg.Output)

	if file {
		path := cfg.FilePath
		if path == "" {
			path = DefaultFilePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
		} else {
			l = l.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   path,
				TimeFormat: timeFormat,
				MaxSize:    maxFileSize,
				MaxBackups: maxBackups,
				OutputType: models.OutputFormatLogfmt,
			})
		}
	}

	if console {
		l = l.WithConsoleWriter(consoleWriter())
	}

	return l.WithLevelFromString(Level(cfg.Level, verbose))
}

// NoOp returns a logger that discards everything. It carries its own
// writer, so writers registered by Init never see its events.
func NoOp() arbor.ILogger {
	return arbor.NewLogger().WithWriters([]writers.IWriter{discard{}})
}

type discard struct{}

func (d discard) WithLevel(log.Level) writers.IWriter { return d }
func (discard) Write(p []byte) (int, error)           { return len(p), nil }
func (discard) GetFilePath() string                   { return "" }
func (discard) Close() error                          { return nil }

// Level resolves the effective level name. Verbose always wins.
func Level(level string, verbose bool) string {
	if verbose {
		return "debug"
	}
	if level == "" {
		return "info"
	}
	return level
}

// outputs reports which writers are requested. No outputs means console.
func outputs(names []string) (console, file bool) {
	if len(names) == 0 {
		return true, false
	}
	for _, o := range names {
		switch o {
		case "console", "stdout":
			console = true
		case "file":
			file = true
		}
	}
	return console, file
}

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: timeFormat,
	}
}
