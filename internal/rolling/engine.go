// Package rolling is an append-only log file writer with time-named archives.
// It does not decide when to rotate; callers invoke Rollover.
package rolling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("rolling: engine closed")

// Options configure an Engine.
type Options struct {
	// File is the active log file.
	File string
	// FileNamePattern names archived segments, see Pattern.
	FileNamePattern string
	// MaxHistory is the number of archived segments kept. 0 keeps all.
	MaxHistory int
	// PeriodStart maps a time to the start of its rotation period. The
	// archive name of a segment is derived from the period it was opened in.
	PeriodStart func(time.Time) time.Time
	Now         func() time.Time
	Log         *zap.Logger
}

// Engine writes the active file and archives it on Rollover.
type Engine struct {
	mu      sync.Mutex
	opts    Options
	pattern *Pattern
	file    *os.File
	period  time.Time
	log     *zap.Logger
}

// Open creates the active file (and its directory) if needed and returns an
// engine appending to it.
func Open(opts Options) (*Engine, error) {
	if opts.File == "" {
		return nil, errors.New("rolling: active file name is required")
	}
	pattern, err := ParsePattern(opts.FileNamePattern)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PeriodStart == nil {
		opts.PeriodStart = func(t time.Time) time.Time { return t.Truncate(time.Minute) }
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{opts: opts, pattern: pattern, log: log}

	// An existing active file belongs to the period it was last written in.
	opened := opts.Now()
	if fi, err := os.Stat(opts.File); err == nil {
		opened = fi.ModTime()
	}
	if err := e.openActive(opened); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) openActive(at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(e.opts.File), 0o755); err != nil {
		return fmt.Errorf("rolling: mkdir: %w", err)
	}
	f, err := os.OpenFile(e.opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("rolling: open active file: %w", err)
	}
	e.file = f
	e.period = e.opts.PeriodStart(at)
	return nil
}

// ActiveFileName returns the path of the file currently written.
func (e *Engine) ActiveFileName() string { return e.opts.File }

// FileNamePattern returns the archive pattern as configured.
func (e *Engine) FileNamePattern() string { return e.pattern.String() }

// Write appends p to the active file.
func (e *Engine) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return 0, ErrClosed
	}
	return e.file.Write(p)
}

// Sync flushes the active file.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	return e.file.Sync()
}

// Close closes the active file without archiving it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

// Rollover archives the active file under the name of the period it was
// opened in, starts a fresh active file and enforces MaxHistory.
func (e *Engine) Rollover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return ErrClosed
	}
	if err := e.file.Close(); err != nil {
		e.log.Warn("rolling: close active file", zap.Error(err))
	}
	e.file = nil

	target := e.archiveName(e.period)
	renameErr := os.MkdirAll(filepath.Dir(target), 0o755)
	if renameErr == nil {
		renameErr = os.Rename(e.opts.File, target)
	}

	// The writer stays available even when archiving failed.
	openErr := e.openActive(e.opts.Now())
	if renameErr != nil {
		return errors.Join(fmt.Errorf("rolling: rename %s: %w", target, renameErr), openErr)
	}
	if openErr != nil {
		return openErr
	}

	e.log.Debug("rolled over", zap.String("segment", target))
	e.prune()
	return nil
}

func (e *Engine) archiveName(period time.Time) string {
	if e.pattern.HasIndex() {
		for i := 0; ; i++ {
			name := e.pattern.Format(period, i)
			if !exists(name) {
				return name
			}
		}
	}
	name := e.pattern.Format(period, 0)
	if !exists(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + "." + strconv.Itoa(i)
		if !exists(candidate) {
			return candidate
		}
	}
}

func (e *Engine) prune() {
	if e.opts.MaxHistory <= 0 {
		return
	}
	matches, err := filepath.Glob(e.pattern.Glob())
	if err != nil {
		e.log.Warn("rolling: list archives", zap.Error(err))
		return
	}

	type archived struct {
		path string
		mod  time.Time
	}
	var segments []archived
	for _, m := range matches {
		if strings.HasSuffix(m, ".gz") {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		segments = append(segments, archived{path: m, mod: fi.ModTime()})
	}
	if len(segments) <= e.opts.MaxHistory {
		return
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].mod.After(segments[j].mod) })
	for _, s := range segments[e.opts.MaxHistory:] {
		for _, p := range []string{s.path, s.path + ".gz"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				e.log.Warn("rolling: remove expired archive", zap.String("segment", p), zap.Error(err))
			}
		}
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
