package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tejiriaustin/tiffwatch/config"
	"github.com/tejiriaustin/tiffwatch/db"
	"github.com/tejiriaustin/tiffwatch/models"
)

type fakeScanner struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	errs  []error
	calls int
}

func (f *fakeScanner) Scan(ctx context.Context) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return models.Snapshot{}, f.errs[i]
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	return f.snaps[i], nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Initial(ctx context.Context, snap models.Snapshot) error {
	return m.Called(snap).Error(0)
}

func (m *MockNotifier) Status(ctx context.Context, delta models.Delta, snap models.Snapshot) error {
	return m.Called(delta, snap).Error(0)
}

func (m *MockNotifier) Warning(ctx context.Context, net int, dir string) error {
	return m.Called(net, dir).Error(0)
}

func (m *MockNotifier) LowDiskSpace(ctx context.Context, dir string, freeGB float64) error {
	return m.Called(dir, freeGB).Error(0)
}

func (m *MockNotifier) Final(ctx context.Context, dir string) error {
	return m.Called(dir).Error(0)
}

type memoryRepo struct {
	mu      sync.Mutex
	results []models.PollResult
}

func (r *memoryRepo) Close() error                                     { return nil }
func (r *memoryRepo) CreatePollResultsTable(ctx context.Context) error { return nil }

func (r *memoryRepo) InsertPollResult(ctx context.Context, result models.PollResult) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return int64(len(r.results)), nil
}

func (r *memoryRepo) GetPollResults(ctx context.Context, filter db.PollFilter) ([]models.PollResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PollResult(nil), r.results...), nil
}

func snapshot(freeGB float64, names ...string) models.Snapshot {
	files := make(map[string]models.FileEntry, len(names))
	for _, n := range names {
		files[n] = models.FileEntry{Name: n, Size: 1, ModTime: time.Unix(100, 0)}
	}
	return models.Snapshot{Directory: "/data/scans", Files: files, FreeGB: freeGB}
}

func testConfig() *config.Config {
	return &config.Config{
		WatchDirectory: "/data/scans",
		Interval:       time.Hour,
		LowSpaceGB:     75,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, &fakeScanner{}, new(MockNotifier), nil, nil)
	assert.Error(t, err)

	_, err = New(&config.Config{}, nil, &fakeScanner{}, new(MockNotifier), nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, nil, new(MockNotifier), nil, nil)
	assert.Error(t, err)

	d, err := New(testConfig(), nil, &fakeScanner{}, new(MockNotifier), nil, nil)
	require.NoError(t, err)
	assert.Len(t, d.RunID(), 36)
}

func TestDaemon_Poll(t *testing.T) {
	tests := []struct {
		name        string
		prev        models.Snapshot
		cur         models.Snapshot
		wantNet     int
		wantWarning string
		wantLow     bool
	}{
		{
			name:    "files added, plenty of space",
			prev:    snapshot(200, "a.tif"),
			cur:     snapshot(200, "a.tif", "b.tif", "c.tif"),
			wantNet: 2,
		},
		{
			name:        "nothing added",
			prev:        snapshot(200, "a.tif"),
			cur:         snapshot(200, "a.tif"),
			wantNet:     0,
			wantWarning: "NO FILES ADDED",
		},
		{
			name:        "files removed and low space",
			prev:        snapshot(200, "a.tif", "b.tif"),
			cur:         snapshot(10, "a.tif"),
			wantNet:     -1,
			wantWarning: "FILES REMOVED",
			wantLow:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := new(MockNotifier)
			repo := &memoryRepo{}
			scanner := &fakeScanner{snaps: []models.Snapshot{tt.cur}}

			d, err := New(testConfig(), nil, scanner, notifier, repo, nil, WithRunID("run-1"))
			require.NoError(t, err)
			d.setLatest(tt.prev)

			notifier.On("Status", mock.Anything, tt.cur).Return(nil).Once()
			if tt.wantWarning != "" {
				notifier.On("Warning", tt.wantNet, "/data/scans").Return(nil).Once()
			}
			if tt.wantLow {
				notifier.On("LowDiskSpace", "/data/scans", tt.cur.FreeGB).Return(nil).Once()
			}

			result, err := d.Poll(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantNet, result.Net)
			assert.Equal(t, tt.wantWarning, result.Warning)
			assert.Equal(t, tt.wantLow, result.LowSpace)
			assert.Equal(t, "run-1", result.RunID)
			assert.Equal(t, 1, result.Sequence)
			assert.Equal(t, int64(1), result.ID)
			require.Len(t, repo.results, 1)

			latest, ok := d.Latest()
			assert.True(t, ok)
			assert.Equal(t, tt.cur, latest)

			notifier.AssertExpectations(t)
		})
	}
}

func TestDaemon_PollScanErrorKeepsSnapshot(t *testing.T) {
	notifier := new(MockNotifier)
	scanner := &fakeScanner{errs: []error{errors.New("disk gone")}, snaps: []models.Snapshot{snapshot(1)}}

	d, err := New(testConfig(), nil, scanner, notifier, nil, nil)
	require.NoError(t, err)
	prev := snapshot(200, "a.tif")
	d.setLatest(prev)

	_, err = d.Poll(context.Background())
	assert.ErrorContains(t, err, "disk gone")

	latest, _ := d.Latest()
	assert.Equal(t, prev, latest)
	notifier.AssertNotCalled(t, "Status", mock.Anything, mock.Anything)
}

func TestDaemon_PollNotificationFailureStillRecords(t *testing.T) {
	notifier := new(MockNotifier)
	repo := &memoryRepo{}
	scanner := &fakeScanner{snaps: []models.Snapshot{snapshot(200, "a.tif")}}

	d, err := New(testConfig(), nil, scanner, notifier, repo, nil)
	require.NoError(t, err)

	notifier.On("Status", mock.Anything, mock.Anything).Return(errors.New("webhook down"))

	_, err = d.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, repo.results, 1)
}

func TestDaemon_StartDaemonRunsForDuration(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.Duration = 110 * time.Millisecond

	notifier := new(MockNotifier)
	repo := &memoryRepo{}
	scanner := &fakeScanner{snaps: []models.Snapshot{
		snapshot(200, "a.tif"),
		snapshot(200, "a.tif", "b.tif"),
	}}

	notifier.On("Initial", snapshot(200, "a.tif")).Return(nil).Once()
	notifier.On("Status", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Warning", 0, "/data/scans").Return(nil).Maybe()
	notifier.On("Final", "/data/scans").Return(nil).Once()

	d, err := New(cfg, nil, scanner, notifier, repo, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.StartDaemon(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after its duration")
	}

	notifier.AssertExpectations(t)
	results, _ := repo.GetPollResults(context.Background(), db.PollFilter{})
	require.NotEmpty(t, results)
	assert.Equal(t, 1, results[0].Net, "first poll sees the added file")
	for _, r := range results[1:] {
		assert.Equal(t, "NO FILES ADDED", r.Warning)
	}
}

func TestDaemon_StartDaemonCancelSendsFinal(t *testing.T) {
	notifier := new(MockNotifier)
	scanner := &fakeScanner{snaps: []models.Snapshot{snapshot(200, "a.tif")}}
	cmdChan := make(chan Command, 1)

	statusSeen := make(chan struct{})
	notifier.On("Initial", mock.Anything).Return(nil).Once()
	notifier.On("Warning", 0, "/data/scans").Return(nil).Once()
	notifier.On("Status", mock.Anything, mock.Anything).Return(nil).Once().Run(func(mock.Arguments) {
		close(statusSeen)
	})
	notifier.On("Final", "/data/scans").Return(nil).Once()

	d, err := New(testConfig(), nil, scanner, notifier, nil, cmdChan)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.StartDaemon(ctx) }()

	cmdChan <- Command{Name: CommandPoll}
	select {
	case <-statusSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("manual poll was not executed")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop on cancel")
	}

	notifier.AssertExpectations(t)
}

func TestDaemon_StartDaemonInitialScanError(t *testing.T) {
	notifier := new(MockNotifier)
	scanner := &fakeScanner{errs: []error{errors.New("permission denied")}}

	d, err := New(testConfig(), nil, scanner, notifier, nil, nil)
	require.NoError(t, err)

	err = d.StartDaemon(context.Background())
	assert.ErrorContains(t, err, "initial scan failed")
	notifier.AssertNotCalled(t, "Final", mock.Anything)
}
