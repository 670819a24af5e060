package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"tmcore/internal/config"
)

const logFileName = "tmcore.log"

// Options describes logger construction parameters. OutputPaths accepts file
// paths plus the names "stdout" and "stderr"; empty means stderr.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	// Development adds caller information at every level.
	Development bool
}

// New constructs a slog logger from opts.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := opts.Development || level.Level() <= slog.LevelDebug

	var build func(io.Writer, *slog.LevelVar, bool) slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		build = newPrettyHandler
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	w, err := openSinks(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	return slog.New(build(w, level, addSource)), nil
}

// NewFromConfig builds the CLI logger: stderr plus tmcore.log under the
// configured log directory. Stdout stays free for command output.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	sinks := []string{"stderr"}
	if dir := cfg.Paths.LogDir; dir != "" {
		sinks = append(sinks, filepath.Join(dir, logFileName))
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: sinks})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openSinks resolves each distinct path to a writer. Log files are opened in
// append mode, creating their directory when needed.
func openSinks(paths []string) (io.Writer, error) {
	var names []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(names, p) {
			names = append(names, p)
		}
	}

	writers := make([]io.Writer, 0, len(names))
	for _, name := range names {
		switch name {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", name, err)
			}
			writers = append(writers, f)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}
