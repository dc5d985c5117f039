package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tejiriaustin/tiffwatch/logger"
	"github.com/tejiriaustin/tiffwatch/models"
)

type Poster interface {
	Post(ctx context.Context, url string, payload interface{}) error
}

// Notifier routes messages: lifecycle and status to the log hook, warnings
// to the warn hook. With no hook configured the payload is only logged.
type Notifier struct {
	poster  Poster
	logURL  string
	warnURL string
	now     func() time.Time
	logger  *logger.Logger
}

type NotifierOption func(*Notifier)

func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) {
		n.now = now
	}
}

func NewNotifier(poster Poster, logURL, warnURL string, log *logger.Logger, opts ...NotifierOption) *Notifier {
	if warnURL == "" {
		warnURL = logURL
	}
	if log == nil {
		log = logger.NewNop()
	}
	n := &Notifier{
		poster:  poster,
		logURL:  logURL,
		warnURL: warnURL,
		now:     time.Now,
		logger:  log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Initial(ctx context.Context, snap models.Snapshot) error {
	return n.send(ctx, n.logURL, "initial", InitialMessage(snap.Directory, snap.Count(), snap.FreeGB, n.now()))
}

func (n *Notifier) Status(ctx context.Context, delta models.Delta, snap models.Snapshot) error {
	return n.send(ctx, n.logURL, "status", StatusMessage(delta, snap.PendingCount(), snap.FreeGB, n.now()))
}

func (n *Notifier) Warning(ctx context.Context, net int, dir string) error {
	return n.send(ctx, n.warnURL, "warning", WarningMessage(net, dir, n.now()))
}

func (n *Notifier) LowDiskSpace(ctx context.Context, dir string, freeGB float64) error {
	return n.send(ctx, n.warnURL, "low_disk_space", LowDiskSpaceMessage(dir, freeGB, n.now()))
}

func (n *Notifier) Final(ctx context.Context, dir string) error {
	return n.send(ctx, n.logURL, "final", FinalMessage(dir, n.now()))
}

func (n *Notifier) send(ctx context.Context, url, kind string, payload Payload) error {
	if url == "" || n.poster == nil {
		body, _ := json.Marshal(payload)
		n.logger.Infow("Webhook not configured, notification logged only", "kind", kind, "payload", string(body))
		return nil
	}
	if err := n.poster.Post(ctx, url, payload); err != nil {
		return err
	}
	n.logger.Debugw("Notification sent", "kind", kind)
	return nil
}
