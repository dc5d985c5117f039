package logparse

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/tejiriaustin/tiffwatch/models"
)

var fakeMessages = []string{"alpha", "beta", "LET'S PLAY PRETEND", "help"}

const defaultMaxDelay = 500 * time.Millisecond

// FakeLogWriter produces synthetic log lines in the format ParseTimestamp
// understands. Useful for exercising the parser against real timing.
type FakeLogWriter struct {
	rnd      *rand.Rand
	now      func() time.Time
	maxDelay time.Duration
}

type FakeLogOption func(*FakeLogWriter)

func WithSeed(seed int64) FakeLogOption {
	return func(w *FakeLogWriter) {
		w.rnd = rand.New(rand.NewSource(seed))
	}
}

func WithMaxDelay(d time.Duration) FakeLogOption {
	return func(w *FakeLogWriter) {
		w.maxDelay = d
	}
}

func WithClock(now func() time.Time) FakeLogOption {
	return func(w *FakeLogWriter) {
		w.now = now
	}
}

func NewFakeLogWriter(opts ...FakeLogOption) *FakeLogWriter {
	w := &FakeLogWriter{
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		maxDelay: defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write emits lines until n have been written or ctx is done. n <= 0 means
// no limit. It returns the number of lines written.
func (w *FakeLogWriter) Write(ctx context.Context, out io.Writer, n int) (int, error) {
	written := 0
	for n <= 0 || written < n {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		msg := fakeMessages[w.rnd.Intn(len(fakeMessages))]
		if _, err := fmt.Fprintf(out, "%s *nis* %s\n", w.now().Format(models.TimestampLayout), msg); err != nil {
			return written, fmt.Errorf("failed to write log line: %w", err)
		}
		written++

		var delay time.Duration
		if w.maxDelay > 0 {
			delay = time.Duration(w.rnd.Int63n(int64(w.maxDelay)))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return written, ctx.Err()
		case <-timer.C:
		}
	}
	return written, nil
}
