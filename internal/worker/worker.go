package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fabriziosalmi/rainroll/internal/models"
	"github.com/fabriziosalmi/rainroll/internal/notifications"
	"github.com/fabriziosalmi/rainroll/internal/queue"
	"github.com/fabriziosalmi/rainroll/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotAccepting is returned by Enqueue once a drain was requested.
	ErrNotAccepting = errors.New("worker: not accepting tasks")
	// ErrDrainTimeout is returned by DrainAndStop when the queue did not
	// empty in time. The lane was stopped forcibly.
	ErrDrainTimeout = errors.New("worker: drain timed out")
)

const (
	alertSource  = "upload-worker"
	alertTimeout = 5 * time.Second
)

// Options configure an UploadWorker.
type Options struct {
	Store ObjectStore
	// Compress defaults to storage.Compress.
	Compress CompressFunc
	// RateLimit caps uploads per second; 0 disables the limiter.
	RateLimit float64
	Notifier  Notifier
	Log       *zap.Logger
	// OnResult, if set, is called on the lane after every task.
	OnResult func(models.UploadResult)
}

// UploadWorker runs compress-and-upload tasks one at a time, in the order they
// were enqueued, on a single background goroutine. Failures are logged and
// the task dropped; nothing is retried.
type UploadWorker struct {
	store    ObjectStore
	compress CompressFunc
	limiter  *rate.Limiter
	notifier Notifier
	log      *zap.Logger
	onResult func(models.UploadResult)

	tasks *queue.FIFO[models.UploadTask]

	mu    sync.Mutex
	state models.WorkerState

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewUploadWorker(opts Options) *UploadWorker {
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	compress := opts.Compress
	if compress == nil {
		compress = storage.Compress
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadWorker{
		store:    opts.Store,
		compress: compress,
		limiter:  limiter,
		notifier: opts.Notifier,
		log:      log,
		onResult: opts.OnResult,
		tasks:    queue.New[models.UploadTask](),
		state:    models.WorkerIdle,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the lane. Calling it more than once is a no-op.
func (w *UploadWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == models.WorkerIdle {
		w.startLocked()
	}
}

func (w *UploadWorker) startLocked() {
	w.state = models.WorkerRunning
	go w.run()
}

// State returns the lifecycle state.
func (w *UploadWorker) State() models.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Pending returns the number of tasks waiting for the lane.
func (w *UploadWorker) Pending() int { return w.tasks.Len() }

// Enqueue queues a task and returns immediately. Tasks queued before Start
// run once the lane starts.
func (w *UploadWorker) Enqueue(task models.UploadTask) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != models.WorkerIdle && w.state != models.WorkerRunning {
		return fmt.Errorf("%w (state %s)", ErrNotAccepting, w.state)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	w.tasks.Push(task)
	return nil
}

// DrainAndStop stops accepting tasks and blocks until every queued task has
// run or timeout elapses. On timeout the lane is cancelled, whatever is still
// queued is discarded, and ErrDrainTimeout is returned without waiting for the
// in-flight upload. The worker is Stopped when it returns.
func (w *UploadWorker) DrainAndStop(timeout time.Duration) error {
	w.mu.Lock()
	switch w.state {
	case models.WorkerStopped:
		w.mu.Unlock()
		return nil
	case models.WorkerIdle:
		// queued tasks still deserve their upload
		w.startLocked()
		w.state = models.WorkerDraining
	case models.WorkerRunning:
		w.state = models.WorkerDraining
	}
	w.mu.Unlock()
	w.tasks.Wake()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		w.mu.Lock()
		w.state = models.WorkerStopped
		w.mu.Unlock()
		w.cancel()
		w.log.Debug("upload worker drained")
		return nil
	case <-timer.C:
		pending := w.Pending()
		w.Stop()
		w.log.Error("upload worker drain timed out, stopping forcibly",
			zap.Duration("timeout", timeout),
			zap.Int("pending", pending),
		)
		w.alert(context.Background(), notifications.SeverityCritical,
			fmt.Sprintf("drain timed out after %s with %d queued upload(s)", timeout, pending))
		return ErrDrainTimeout
	}
}

// Stop terminates the lane without draining. An upload in flight sees its
// context cancelled; queued tasks are discarded.
func (w *UploadWorker) Stop() {
	w.mu.Lock()
	if w.state == models.WorkerStopped {
		w.mu.Unlock()
		return
	}
	w.state = models.WorkerStopped
	w.mu.Unlock()

	w.cancel()
	if n := w.tasks.Drop(); n > 0 {
		w.log.Warn("upload worker stopped with queued tasks", zap.Int("dropped", n))
	}
}

func (w *UploadWorker) run() {
	defer close(w.done)
	for {
		if w.ctx.Err() != nil {
			return
		}
		// Read the state before popping: every accepted task was pushed
		// before the state left Running.
		draining := w.State() == models.WorkerDraining
		if task, ok := w.tasks.Pop(); ok {
			w.execute(task)
			continue
		}
		if draining {
			return
		}
		select {
		case <-w.tasks.Ready():
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *UploadWorker) execute(task models.UploadTask) {
	start := time.Now()
	res := models.UploadResult{Task: task}
	log := w.log.With(
		zap.String("task_id", task.ID.String()),
		zap.String("segment", task.Segment),
	)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker: upload panic: %v", r)
			log.Error("upload task panicked", zap.Any("panic", r))
		}
		res.Duration = time.Since(start)
		if w.onResult != nil {
			w.onResult(res)
		}
	}()

	artifact, err := w.compress(task.Segment)
	if errors.Is(err, storage.ErrEmptySegment) {
		res.Skipped = true
		log.Debug("segment is empty, nothing to upload")
		return
	}
	if err != nil {
		res.Err = err
		log.Error("compression failed", zap.Error(err))
		return
	}
	res.Artifact = models.Artifact{Path: artifact, Key: task.Key}

	// guards against a compression failure reaching the store
	if !storage.Usable(artifact) {
		res.Skipped = true
		log.Debug("artifact missing or empty, skipping upload", zap.String("artifact", artifact))
		return
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(w.ctx); err != nil {
			res.Err = fmt.Errorf("worker: rate limiter: %w", err)
			log.Warn("upload abandoned while throttled", zap.Error(err))
			return
		}
	}

	if err := w.store.PutObject(w.ctx, task.Bucket, task.Key, artifact); err != nil {
		res.Err = err
		log.Error("upload failed, dropping artifact",
			zap.String("bucket", task.Bucket),
			zap.String("key", task.Key),
			zap.Error(err),
		)
		w.alert(w.ctx, notifications.SeverityWarning,
			fmt.Sprintf("upload of %s to %s/%s failed: %v", artifact, task.Bucket, task.Key, err))
		return
	}

	log.Info("uploaded",
		zap.String("bucket", task.Bucket),
		zap.String("key", task.Key),
		zap.Duration("took", time.Since(start)),
	)
}

func (w *UploadWorker) alert(parent context.Context, severity, message string) {
	if w.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), alertTimeout)
	defer cancel()
	if err := w.notifier.SendAlert(ctx, alertSource, severity, message); err != nil {
		w.log.Warn("alert delivery failed", zap.Error(err))
	}
}
