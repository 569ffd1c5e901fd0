// Package policy rotates a log file on a fixed minute period and ships every
// closed segment to an object store.
//
// A clock goroutine calls Rollover at each boundary. Rollover drives the
// rotation engine synchronously, finds the segment it just closed and queues
// it on the upload worker; compression and upload happen on the worker's lane
// so a slow store never delays writes or the next rotation. On exit the
// registered hook performs one last rollover (or uploads the active file as
// is) and waits, bounded, for the worker to drain.
package policy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fabriziosalmi/rainroll/internal/lifecycle"
	"github.com/fabriziosalmi/rainroll/internal/models"
	"github.com/fabriziosalmi/rainroll/internal/storage"
	"github.com/fabriziosalmi/rainroll/internal/trigger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDrainTimeout bounds the exit drain when none is configured.
const DefaultDrainTimeout = 10 * time.Minute

// ErrRolloverFailure wraps any error from the rotation engine.
var ErrRolloverFailure = errors.New("policy: rollover failed")

// Engine is the rotation engine the coordinator drives.
type Engine interface {
	Rollover() error
	ActiveFileName() string
	FileNamePattern() string
}

// Uploader is the asynchronous lane segments are handed to.
type Uploader interface {
	Start()
	Enqueue(task models.UploadTask) error
	DrainAndStop(timeout time.Duration) error
	Stop()
}

// Options configure a Coordinator. Everything is fixed once Start is called.
type Options struct {
	Engine Engine
	Worker Uploader
	// Clock defaults to a one minute period.
	Clock        *trigger.Clock
	Bucket       string
	Folder       string
	RollOnExit   bool
	DrainTimeout time.Duration
	Log          *zap.Logger
}

// Coordinator ties the clock, the rotation engine and the upload worker
// together.
type Coordinator struct {
	engine       Engine
	worker       Uploader
	clock        *trigger.Clock
	bucket       string
	folder       string
	rollOnExit   bool
	drainTimeout time.Duration
	log          *zap.Logger

	rollMu sync.Mutex
	state  atomic.Value // models.CoordinatorState

	startOnce    sync.Once
	stopClock    context.CancelFunc
	clockDone    chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

func New(opts Options) (*Coordinator, error) {
	if opts.Engine == nil {
		return nil, errors.New("policy: rotation engine is required")
	}
	if opts.Worker == nil {
		return nil, errors.New("policy: upload worker is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = trigger.NewClock()
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Coordinator{
		engine:       opts.Engine,
		worker:       opts.Worker,
		clock:        clock,
		bucket:       opts.Bucket,
		folder:       opts.Folder,
		rollOnExit:   opts.RollOnExit,
		drainTimeout: drain,
		log:          log,
		stopClock:    func() {},
	}
	c.state.Store(models.CoordinatorIdle)
	return c, nil
}

// State reports whether a rollover is in progress.
func (c *Coordinator) State() models.CoordinatorState {
	return c.state.Load().(models.CoordinatorState)
}

// Start launches the upload worker and the boundary clock and registers the
// exit drain in hooks. It may be called once.
func (c *Coordinator) Start(ctx context.Context, hooks *lifecycle.Hooks) error {
	err := errors.New("policy: coordinator already started")
	c.startOnce.Do(func() {
		err = nil
		c.worker.Start()

		runCtx, cancel := context.WithCancel(ctx)
		c.stopClock = cancel
		c.clockDone = make(chan struct{})
		go func() {
			defer close(c.clockDone)
			c.clock.Run(runCtx, c.onBoundary)
		}()

		if hooks != nil {
			hooks.Add("rainroll-shutdown-drain", c.exitHook())
		}

		c.log.Info("rotation policy started",
			zap.Int("period_minutes", c.clock.PeriodMinutes()),
			zap.String("active_file", c.engine.ActiveFileName()),
			zap.String("file_name_pattern", c.engine.FileNamePattern()),
			zap.String("bucket", c.bucket),
			zap.String("folder", c.folder),
			zap.Bool("roll_on_exit", c.rollOnExit),
		)
	})
	return err
}

func (c *Coordinator) onBoundary(boundary time.Time) {
	// The failure is already logged; the next boundary tries again.
	_ = c.Rollover()
	c.log.Debug("boundary handled", zap.Time("boundary", boundary))
}

// Rollover rotates the active file and queues the segment it produced for
// compression and upload. Only engine failures are returned; finding nothing
// to upload is not an error.
func (c *Coordinator) Rollover() error {
	c.rollMu.Lock()
	defer c.rollMu.Unlock()

	c.state.Store(models.CoordinatorRollingOver)
	defer c.state.Store(models.CoordinatorIdle)

	if err := c.engine.Rollover(); err != nil {
		c.log.Error("rollover failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRolloverFailure, err)
	}

	dir := ArchiveDir(c.engine.FileNamePattern())
	seg, ok := LastModified(dir)
	if !ok {
		c.log.Debug("no segment found after rollover", zap.String("archive_dir", dir))
		return nil
	}
	_ = c.Submit(seg.Path)
	return nil
}

// Submit queues a file for compression and upload without blocking. The
// returned error only says the worker refused the task; it is also logged.
func (c *Coordinator) Submit(segment string) error {
	task := NewUploadTask(c.bucket, c.folder, segment)
	if err := c.worker.Enqueue(task); err != nil {
		c.log.Warn("upload not queued", zap.String("segment", segment), zap.Error(err))
		return err
	}
	c.log.Info("uploading",
		zap.String("task_id", task.ID.String()),
		zap.String("segment", segment),
		zap.String("key", task.Key),
	)
	return nil
}

// NewUploadTask builds the task for a segment. The key is the artifact file
// name, under folder when one is set.
func NewUploadTask(bucket, folder, segment string) models.UploadTask {
	return models.UploadTask{
		ID:         uuid.New(),
		Segment:    segment,
		Bucket:     bucket,
		Key:        storage.ObjectKey(folder, filepath.Base(storage.ArtifactPath(segment))),
		EnqueuedAt: time.Now(),
	}
}
