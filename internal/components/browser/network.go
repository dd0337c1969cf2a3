package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// idleTracker counts the page's in-flight requests.
type idleTracker struct {
	mutex        sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:     map[network.RequestID]struct{}{},
		lastActivity: time.Now(),
	}
}

func (t *idleTracker) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.started(e.RequestID)
		case *network.EventLoadingFinished:
			t.finished(e.RequestID)
		case *network.EventLoadingFailed:
			t.finished(e.RequestID)
		}
	})
}

func (t *idleTracker) started(id network.RequestID) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = time.Now()
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.inflight, id)
	t.lastActivity = time.Now()
}

// idleFor returns how long there have been no in-flight requests, zero while
// any request is pending.
func (t *idleTracker) idleFor(now time.Time) time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if len(t.inflight) > 0 {
		return 0
	}
	return now.Sub(t.lastActivity)
}

// wait blocks until the page has been idle for quiet. ok is false when timeout
// passed first.
func (t *idleTracker) wait(ctx context.Context, quiet, timeout time.Duration) (ok bool, err error) {
	ticker := time.NewTicker(quiet / 2)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case now := <-ticker.C:
			if t.idleFor(now) >= quiet {
				return true, nil
			}
		}
	}
}
