package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tejiriaustin/tiffwatch/config"
	"github.com/tejiriaustin/tiffwatch/db"
	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/models"
	"github.com/tejiriaustin/tiffwatch/monitoring"
	"github.com/tejiriaustin/tiffwatch/notify"
)

const (
	CommandPoll = "poll"

	finalNoticeTimeout = 15 * time.Second
)

type (
	Daemon struct {
		cfg      *config.Config
		logger   *logger.Logger
		scanner  monitoring.Scanner
		notifier Notifier
		repo     db.Repository
		cmdChan  <-chan Command
		now      func() time.Time
		runID    string

		mu       sync.RWMutex
		latest   models.Snapshot
		hasScan  bool
		sequence int
	}
	Command struct {
		Name string
	}
	Notifier interface {
		Initial(ctx context.Context, snap models.Snapshot) error
		Status(ctx context.Context, delta models.Delta, snap models.Snapshot) error
		Warning(ctx context.Context, net int, dir string) error
		LowDiskSpace(ctx context.Context, dir string, freeGB float64) error
		Final(ctx context.Context, dir string) error
	}
	Option func(*Daemon)
)

var _ Notifier = (*notify.Notifier)(nil)
var _ monitoring.SnapshotSource = (*Daemon)(nil)

func WithClock(now func() time.Time) Option {
	return func(d *Daemon) {
		d.now = now
	}
}

func WithRunID(id string) Option {
	return func(d *Daemon) {
		d.runID = id
	}
}

func New(cfg *config.Config, log *logger.Logger, scanner monitoring.Scanner, notifier Notifier, repo db.Repository, cmdChan <-chan Command, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Interval)
	}
	if scanner == nil || notifier == nil {
		return nil, errors.New("scanner and notifier are required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   log,
		scanner:  scanner,
		notifier: notifier,
		repo:     repo,
		cmdChan:  cmdChan,
		now:      time.Now,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Daemon) RunID() string {
	return d.runID
}

// Latest returns the most recent snapshot, false before the first scan.
func (d *Daemon) Latest() (models.Snapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.hasScan
}

// StartDaemon runs one watcher session: initial notice, a poll every
// interval until the configured duration elapses or ctx is cancelled, then a
// final notice. The final notice is sent even when ctx was cancelled.
func (d *Daemon) StartDaemon(ctx context.Context) error {
	dir := d.cfg.WatchDirectory
	start := d.now()

	snap, err := d.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}
	d.setLatest(snap)

	d.logger.Infow("Started watching directory", "directory", dir, "run_id", d.runID, "files", snap.Count(), "free_gb", snap.FreeGB)
	if err := d.notifier.Initial(ctx, snap); err != nil {
		d.logger.Errorw("Failed to send start notification", "error", err)
	}

	defer d.sendFinal(dir)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if d.cfg.Duration > 0 {
		timer := time.NewTimer(d.cfg.Duration - d.now().Sub(start))
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Infow("Watcher cancelled", "directory", dir)
			return nil
		case <-deadline:
			d.logger.Infow("Watch duration elapsed", "directory", dir, "duration", d.cfg.Duration)
			return nil
		case <-ticker.C:
			d.pollAndLog(ctx)
		case cmd, ok := <-d.cmdChan:
			if !ok {
				d.cmdChan = nil
				continue
			}
			d.executeCommand(ctx, cmd)
		}
	}
}

func (d *Daemon) executeCommand(ctx context.Context, cmd Command) {
	switch cmd.Name {
	case CommandPoll:
		d.logger.Infow("Manual poll requested")
		d.pollAndLog(ctx)
	default:
		d.logger.Warnw("Ignoring unknown command", "command", cmd.Name)
	}
}

func (d *Daemon) pollAndLog(ctx context.Context) {
	if _, err := d.Poll(ctx); err != nil {
		d.logger.Errorw("Poll failed", "directory", d.cfg.WatchDirectory, "error", err)
	}
}

// Poll scans the directory, compares it with the previous snapshot, sends
// the resulting notifications and records the outcome.
func (d *Daemon) Poll(ctx context.Context) (models.PollResult, error) {
	prev, _ := d.Latest()

	snap, err := d.scanner.Scan(ctx)
	if err != nil {
		return models.PollResult{}, fmt.Errorf("scan failed: %w", err)
	}
	delta := monitoring.Diff(prev, snap)

	d.mu.Lock()
	d.latest = snap
	d.hasScan = true
	d.sequence++
	seq := d.sequence
	d.mu.Unlock()

	dir := d.cfg.WatchDirectory
	result := models.PollResult{
		RunID:     d.runID,
		Sequence:  seq,
		Directory: dir,
		PolledAt:  snap.TakenAt,
		FileCount: snap.Count(),
		Net:       delta.Net(),
		Added:     len(delta.Added),
		Modified:  len(delta.Modified),
		Removed:   len(delta.Removed),
		Pending:   snap.PendingCount(),
		FreeGB:    snap.FreeGB,
		LowSpace:  snap.FreeGB < d.cfg.LowSpaceGB,
		Warning:   notify.WarningTitle(delta.Net()),
	}

	if result.LowSpace {
		if err := d.notifier.LowDiskSpace(ctx, dir, snap.FreeGB); err != nil {
			d.logger.Errorw("Failed to send low disk space warning", "error", err)
		}
	}
	if result.Warning != "" {
		if err := d.notifier.Warning(ctx, result.Net, dir); err != nil {
			d.logger.Errorw("Failed to send warning", "warning", result.Warning, "error", err)
		}
	}
	if err := d.notifier.Status(ctx, delta, snap); err != nil {
		d.logger.Errorw("Failed to send status", "error", err)
	}

	if d.repo != nil {
		id, err := d.repo.InsertPollResult(ctx, result)
		if err != nil {
			d.logger.Errorw("Failed to record poll result", "error", err)
		} else {
			result.ID = id
		}
	}

	d.logger.Infow("Poll complete",
		"sequence", seq,
		"files", result.FileCount,
		"net", result.Net,
		"added", result.Added,
		"modified", result.Modified,
		"removed", result.Removed,
		"pending", result.Pending,
		"free_gb", result.FreeGB,
	)
	return result, nil
}

func (d *Daemon) setLatest(snap models.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = snap
	d.hasScan = true
}

func (d *Daemon) sendFinal(dir string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalNoticeTimeout)
	defer cancel()
	if err := d.notifier.Final(ctx, dir); err != nil {
		d.logger.Errorw("Failed to send stop notification", "error", err)
	}
	d.logger.Infow("Stopped watching directory", "directory", dir, "run_id", d.runID)
}
