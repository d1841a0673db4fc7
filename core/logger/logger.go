package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/marketbot/core/buildinfo"
	coreconfig "github.com/m3rciful/marketbot/core/config"
)

const (
	queueDepth        = 4096
	defaultSampleKeep = 1
	defaultSampleOf   = 50
)

var (
	mu      sync.Mutex
	started bool
	stopped bool

	mainOut   *asyncWriter
	errorsOut *asyncWriter
	files     []io.Closer

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(defaultSampleKeep, defaultSampleOf)

	// L is the process logger. It is nil until InitLogger succeeds; the
	// Debug/Info/Warn/Error helpers are no-ops while it is nil.
	L *slog.Logger
)

type options struct {
	format     logFormat
	order      []string
	level      slog.Level
	keep, of   int
	profile    string
	dir        string
	botFile    string
	errorsFile string
}

func resolve(cfg *coreconfig.Config) options {
	opts := options{
		format:  formatJSON,
		order:   append([]string(nil), defaultKeyOrder...),
		level:   slog.LevelInfo,
		keep:    defaultSampleKeep,
		of:      defaultSampleOf,
		profile: "prod",
	}
	if cfg == nil {
		return opts
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		opts.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		opts.format = formatKV
	case "json":
	default:
		if opts.profile == "debug" || opts.profile == "dev" {
			opts.format = formatKV
		}
	}
	if order := splitList(lc.KeysOrder); len(order) > 0 && !(len(order) == 1 && order[0] == "default") {
		opts.order = order
	}
	switch normalizeLevel(strings.TrimSpace(lc.Level)) {
	case LevelDebug:
		opts.level = slog.LevelDebug
	case LevelWarn:
		opts.level = slog.LevelWarn
	case LevelError:
		opts.level = slog.LevelError
	}
	opts.keep, opts.of = parseDebugSample(lc.DebugSample)
	opts.dir = strings.TrimSpace(lc.Dir)
	opts.botFile = strings.TrimSpace(lc.BotFile)
	opts.errorsFile = strings.TrimSpace(lc.ErrorsFile)
	return opts
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDebugSample reads "k/n" or "n". "0" or "0/0" disables sampling;
// anything unparseable falls back to 1/50.
func parseDebugSample(raw string) (int, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultSampleKeep, defaultSampleOf
	}
	if raw == "0" || raw == "0/0" {
		return 0, 0
	}
	keep, of := parseRatio(raw)
	if keep <= 0 || of <= 0 {
		return defaultSampleKeep, defaultSampleOf
	}
	return keep, of
}

// InitLogger installs the process logger. Calls after the first successful
// one are ignored.
func InitLogger(cfg *coreconfig.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}
	opts := resolve(cfg)

	sinks := []io.Writer{os.Stdout}
	var errSinks []io.Writer
	if opts.dir != "" && (opts.botFile != "" || opts.errorsFile != "") {
		if err := os.MkdirAll(opts.dir, 0o755); err != nil {
			return fmt.Errorf("logger: create %s: %w", opts.dir, err)
		}
		if opts.botFile != "" {
			f, err := openLog(opts.dir, opts.botFile)
			if err != nil {
				return err
			}
			sinks = append(sinks, f)
		}
		if opts.errorsFile != "" {
			f, err := openLog(opts.dir, opts.errorsFile)
			if err != nil {
				return err
			}
			errSinks = append(errSinks, f)
		}
	}

	levelVar.Set(opts.level)
	debugSampler.Set(opts.keep, opts.of)
	mainOut = newAsyncWriter(sinks, queueDepth)
	if len(errSinks) > 0 {
		errorsOut = newAsyncWriter(errSinks, queueDepth)
	}

	L = slog.New(newStructuredHandler(handlerConfig{
		level:    &levelVar,
		writer:   mainOut,
		errors:   errorsOut,
		format:   opts.format,
		keyOrder: opts.order,
	}))
	slog.SetDefault(L)
	started = true

	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("cfg_profile", opts.profile),
	)
	return nil
}

func openLog(dir, name string) (*os.File, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	files = append(files, f)
	return f, nil
}

// Shutdown drains pending lines and closes log files. It is idempotent.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if stopped || !started {
		return nil
	}
	stopped = true

	var errs []error
	for _, w := range []*asyncWriter{mainOut, errorsOut} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event writes one record tagged with component and event.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	lg := L
	if lg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !lg.Enabled(ctx, level) {
		return
	}
	head := make([]slog.Attr, 0, len(attrs)+2)
	if c := strings.TrimSpace(component); c != "" {
		head = append(head, slog.String("component", c))
	}
	if event != "" {
		head = append(head, slog.String("event", event))
	}
	lg.LogAttrs(ctx, level, event, append(head, attrs...)...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether the next high-volume debug line should
// be written.
func ShouldSampleDebug() bool {
	return debugSampler.Allow()
}
