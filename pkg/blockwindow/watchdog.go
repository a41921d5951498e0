package blockwindow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartStallWatchdog warns every interval while the window has not advanced for longer than maxStall.
// It blocks until ctx is done.
func StartStallWatchdog(ctx context.Context, log *zap.SugaredLogger, w *Window, interval, maxStall time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stalled := w.SinceProgress()
			if stalled <= maxStall {
				continue
			}
			block, index, ok := w.Position()
			if !ok {
				log.Warnw("no updates received yet", "waiting", stalled)
				continue
			}
			log.Warnw("window stalled", "stalled", stalled, "blockNumber", block, "lastApplied", index)
		}
	}
}
