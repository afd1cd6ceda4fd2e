// Package audit provides the application logger and the append-only
// per-investigation trail. The trail is a JSONL file recording every
// search, model call, evidence merge, and phase transition so a
// finished investigation can be replayed decision by decision.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig configures the application logger.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is "json" or "console".
	Format string
	// Path is the log file; empty means stderr only.
	Path string
	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
	// MaxAge is the number of days to retain rotated files.
	MaxAge int
}

// NewAppLogger builds the process-wide zap logger. A file path adds a
// rotating JSON core alongside the console core.
func NewAppLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var consoleEncoder zapcore.Encoder
	if cfg.Format == "console" {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level),
	}

	if cfg.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// Trail is an append-only JSONL record of one investigation. Writes are
// buffered and flushed every second or every 100 events, whichever
// comes first.
type Trail struct {
	target string
	path   string

	mu       sync.Mutex
	file     *os.File
	buffer   []*Event
	writeErr error

	searches int
	findings int
	risks    int
	errors   int

	flushTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewTrail opens a trail file under dir named after the target and
// start time, and records the session_start event.
func NewTrail(dir, target string) (*Trail, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trail dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.jsonl", safeName(target), time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trail file: %w", err)
	}

	t := &Trail{
		target:      target,
		path:        path,
		file:        file,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}
	go t.autoFlush()

	t.Log(NewEvent(EventSessionStart).WithField("target", target))
	return t, nil
}

// Path returns the trail file location.
func (t *Trail) Path() string { return t.path }

// Log buffers one event.
func (t *Trail) Log(event *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.EventType {
	case EventSearch:
		t.searches++
	case EventFinding:
		t.findings++
	case EventRisk:
		t.risks++
	case EventError:
		t.errors++
	}

	t.buffer = append(t.buffer, event)
	if len(t.buffer) >= 100 {
		t.flushLocked()
	}
}

// LogSearch records a completed search query.
func (t *Trail) LogSearch(query string, numResults, iteration int) {
	t.Log(NewEvent(EventSearch).
		WithField("query", query).
		WithField("num_results", numResults).
		WithField("iteration", iteration))
}

// LogPhaseChange records a workflow transition.
func (t *Trail) LogPhaseChange(from, to string) {
	t.Log(NewEvent(EventPhaseChange).
		WithField("from", from).
		WithField("to", to))
}

// LogModelCall records an inference invocation.
func (t *Trail) LogModelCall(provider, task string, latencyMS float64, tokens int) {
	t.Log(NewEvent(EventModelCall).
		WithField("provider", provider).
		WithField("task", task).
		WithField("latency_ms", latencyMS).
		WithField("tokens", tokens))
}

// LogFinding records a merged finding.
func (t *Trail) LogFinding(category, claim string, confidence float64) {
	t.Log(NewEvent(EventFinding).
		WithField("category", category).
		WithField("claim", claim).
		WithField("confidence", confidence))
}

// LogRisk records a merged risk indicator.
func (t *Trail) LogRisk(category, description string, severity int) {
	t.Log(NewEvent(EventRisk).
		WithField("category", category).
		WithField("description", description).
		WithField("severity", severity))
}

// LogQueryRefinement records the refined pending queue.
func (t *Trail) LogQueryRefinement(queries []string, reason string) {
	t.Log(NewEvent(EventQueryRefinement).
		WithField("refined", queries).
		WithField("reason", reason))
}

// LogError records a recoverable error.
func (t *Trail) LogError(stage string, err error) {
	t.Log(NewEvent(EventError).
		WithField("stage", stage).
		WithField("error", err.Error()))
}

// Summary returns trail statistics so far.
func (t *Trail) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		Target:        t.target,
		TotalSearches: t.searches,
		TotalFindings: t.findings,
		TotalRisks:    t.risks,
		Errors:        t.errors,
		TrailPath:     t.path,
	}
}

// Close records session_end, flushes, and releases the file. It returns
// the last write failure, if any, so dropped events are not silent.
func (t *Trail) Close() error {
	t.Log(NewEvent(EventSessionEnd).WithField("target", t.target))

	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.flushTicker.Stop()
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
	closeErr := t.file.Close()
	if t.writeErr != nil {
		return fmt.Errorf("trail events lost: %w", t.writeErr)
	}
	return closeErr
}

func (t *Trail) flushLocked() {
	for _, event := range t.buffer {
		line, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := t.file.Write(append(line, '\n')); err != nil {
			t.writeErr = err
		}
	}
	t.buffer = t.buffer[:0]
}

func (t *Trail) autoFlush() {
	for {
		select {
		case <-t.flushTicker.C:
			t.mu.Lock()
			t.flushLocked()
			t.mu.Unlock()
		case <-t.stopCh:
			return
		}
	}
}

// safeName makes a target name usable as a filename fragment.
func safeName(target string) string {
	s := strings.ToLower(strings.ReplaceAll(target, " ", "_"))
	s = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			return r
		}
		return -1
	}, s)
	if len(s) > 30 {
		s = s[:30]
	}
	if s == "" {
		s = "investigation"
	}
	return s
}
