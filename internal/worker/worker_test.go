package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fabriziosalmi/rainroll/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockObjectStore simulates the remote store
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) PutObject(ctx context.Context, bucket, key, path string) error {
	args := m.Called(ctx, bucket, key, path)
	return args.Error(0)
}

// MockNotifier records alerts
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendAlert(ctx context.Context, source, severity, message string) error {
	args := m.Called(ctx, source, severity, message)
	return args.Error(0)
}

func segment(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func task(path, key string) models.UploadTask {
	return models.UploadTask{ID: uuid.New(), Segment: path, Bucket: "archive", Key: key}
}

func TestEnqueueThenDrain_UploadsExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	seg := segment(t, dir, "app.2024-01-01-00-00", "hello\n")

	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, "archive", "logs/app1/app.2024-01-01-00-00.gz", seg+".gz").Return(nil).Once()

	w := NewUploadWorker(Options{Store: store, Log: zap.NewNop()})
	w.Start()
	require.NoError(t, w.Enqueue(task(seg, "logs/app1/app.2024-01-01-00-00.gz")))

	start := time.Now()
	require.NoError(t, w.DrainAndStop(time.Minute))
	assert.Less(t, time.Since(start), 10*time.Second)

	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "PutObject", 1)
	assert.Equal(t, models.WorkerStopped, w.State())
}

func TestDrainAndStop_TimesOutOnStuckUpload(t *testing.T) {
	dir := t.TempDir()
	seg := segment(t, dir, "stuck", "data\n")

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})

	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release // ignores cancellation
		}).
		Return(nil)

	notifier := new(MockNotifier)
	notifier.On("SendAlert", mock.Anything, "upload-worker", "critical", mock.Anything).Return(nil).Once()

	w := NewUploadWorker(Options{Store: store, Notifier: notifier})
	w.Start()
	require.NoError(t, w.Enqueue(task(seg, "stuck.gz")))
	require.NoError(t, w.Enqueue(task(seg, "never.gz")))
	<-started

	timeout := 200 * time.Millisecond
	begin := time.Now()
	err := w.DrainAndStop(timeout)
	elapsed := time.Since(begin)

	assert.ErrorIs(t, err, ErrDrainTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+2*time.Second)
	assert.Equal(t, models.WorkerStopped, w.State())
	assert.Zero(t, w.Pending())
	notifier.AssertExpectations(t)
}

func TestUploadFailure_IsDroppedAndLaneContinues(t *testing.T) {
	dir := t.TempDir()
	first := segment(t, dir, "first", "1\n")
	second := segment(t, dir, "second", "2\n")

	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, "archive", "first.gz", first+".gz").Return(errors.New("access denied")).Once()
	store.On("PutObject", mock.Anything, "archive", "second.gz", second+".gz").Return(nil).Once()

	notifier := new(MockNotifier)
	notifier.On("SendAlert", mock.Anything, "upload-worker", "warning", mock.Anything).Return(errors.New("slack down")).Once()

	var results []models.UploadResult
	w := NewUploadWorker(Options{
		Store:    store,
		Notifier: notifier,
		OnResult: func(r models.UploadResult) { results = append(results, r) },
	})
	w.Start()
	require.NoError(t, w.Enqueue(task(first, "first.gz")))
	require.NoError(t, w.Enqueue(task(second, "second.gz")))
	require.NoError(t, w.DrainAndStop(time.Minute))

	store.AssertExpectations(t)
	notifier.AssertExpectations(t)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, models.Artifact{Path: second + ".gz", Key: "second.gz"}, results[1].Artifact)
}

func TestTasksRunInSubmissionOrder(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var keys []string
	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, "archive", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			keys = append(keys, args.String(2))
			mu.Unlock()
		}).
		Return(nil)

	w := NewUploadWorker(Options{Store: store})
	w.Start()
	var want []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		seg := segment(t, dir, name, name+"\n")
		require.NoError(t, w.Enqueue(task(seg, name+".gz")))
		want = append(want, name+".gz")
	}
	require.NoError(t, w.DrainAndStop(time.Minute))

	assert.Equal(t, want, keys)
}

func TestEmptySegment_Skipped(t *testing.T) {
	dir := t.TempDir()
	seg := segment(t, dir, "empty", "")

	store := new(MockObjectStore)
	var results []models.UploadResult
	w := NewUploadWorker(Options{Store: store, OnResult: func(r models.UploadResult) { results = append(results, r) }})
	w.Start()
	require.NoError(t, w.Enqueue(task(seg, "empty.gz")))
	require.NoError(t, w.DrainAndStop(time.Minute))

	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.NoFileExists(t, seg+".gz")
}

func TestCompressionFailure_NoUpload(t *testing.T) {
	store := new(MockObjectStore)
	w := NewUploadWorker(Options{
		Store:    store,
		Compress: func(string) (string, error) { return "", errors.New("disk full") },
	})
	w.Start()
	require.NoError(t, w.Enqueue(task("/nonexistent/seg", "seg.gz")))
	require.NoError(t, w.DrainAndStop(time.Minute))

	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestZeroLengthArtifact_NoUpload(t *testing.T) {
	dir := t.TempDir()
	artifact := segment(t, dir, "seg.gz", "")

	store := new(MockObjectStore)
	w := NewUploadWorker(Options{
		Store:    store,
		Compress: func(string) (string, error) { return artifact, nil },
	})
	w.Start()
	require.NoError(t, w.Enqueue(task(filepath.Join(dir, "seg"), "seg.gz")))
	require.NoError(t, w.DrainAndStop(time.Minute))

	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPanickingUpload_Recovered(t *testing.T) {
	dir := t.TempDir()
	first := segment(t, dir, "first", "1\n")
	second := segment(t, dir, "second", "2\n")

	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, "archive", "first.gz", mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).Return(nil).Once()
	store.On("PutObject", mock.Anything, "archive", "second.gz", mock.Anything).Return(nil).Once()

	w := NewUploadWorker(Options{Store: store})
	w.Start()
	require.NoError(t, w.Enqueue(task(first, "first.gz")))
	require.NoError(t, w.Enqueue(task(second, "second.gz")))
	require.NoError(t, w.DrainAndStop(time.Minute))

	store.AssertExpectations(t)
}

func TestEnqueueAfterDrain_Rejected(t *testing.T) {
	w := NewUploadWorker(Options{Store: new(MockObjectStore)})
	w.Start()
	require.NoError(t, w.DrainAndStop(time.Minute))

	err := w.Enqueue(task("/tmp/x", "x.gz"))
	assert.ErrorIs(t, err, ErrNotAccepting)
	assert.NoError(t, w.DrainAndStop(time.Minute))
}

func TestDrainBeforeStart_RunsQueuedTasks(t *testing.T) {
	dir := t.TempDir()
	seg := segment(t, dir, "early", "x\n")

	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, "archive", "early.gz", seg+".gz").Return(nil).Once()

	w := NewUploadWorker(Options{Store: store})
	assert.Equal(t, models.WorkerIdle, w.State())
	require.NoError(t, w.Enqueue(task(seg, "early.gz")))
	require.NoError(t, w.DrainAndStop(time.Minute))

	store.AssertExpectations(t)
}

func TestStop_DiscardsQueue(t *testing.T) {
	w := NewUploadWorker(Options{Store: new(MockObjectStore)})
	require.NoError(t, w.Enqueue(task("/tmp/a", "a.gz")))
	require.NoError(t, w.Enqueue(task("/tmp/b", "b.gz")))

	w.Stop()
	assert.Equal(t, models.WorkerStopped, w.State())
	assert.Zero(t, w.Pending())
	assert.ErrorIs(t, w.Enqueue(task("/tmp/c", "c.gz")), ErrNotAccepting)
}

func TestRateLimit_StillUploadsEverything(t *testing.T) {
	dir := t.TempDir()
	store := new(MockObjectStore)
	store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w := NewUploadWorker(Options{Store: store, RateLimit: 50})
	w.Start()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, w.Enqueue(task(segment(t, dir, name, "x\n"), name+".gz")))
	}
	require.NoError(t, w.DrainAndStop(time.Minute))
	store.AssertNumberOfCalls(t, "PutObject", 3)
}
