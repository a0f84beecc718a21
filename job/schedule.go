package job

import (
	"context"
	"time"
)

// pollTask runs fn immediately and then on every tick until stopped.
type pollTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startPollTask(parent context.Context, interval time.Duration, fn func(ctx context.Context)) *pollTask {
	ctx, cancel := context.WithCancel(parent)
	t := &pollTask{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return t
}

// stop is safe to call from inside fn. It does not wait for the goroutine.
func (t *pollTask) stop() {
	t.cancel()
}

func (t *pollTask) wait() {
	<-t.done
}
