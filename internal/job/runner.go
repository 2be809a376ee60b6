package job

import (
	"context"
	"sync"
	"time"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

// ticker - общий цикл фоновой задачи: tick вызывается каждые interval
// до отмены контекста или Stop.
type ticker struct {
	name     string
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newTicker(name string, interval time.Duration) ticker {
	return ticker{name: name, interval: interval, stopCh: make(chan struct{})}
}

func (t *ticker) run(ctx context.Context, tick func(context.Context)) {
	logger.Log.WithField("job", t.name).Info("job started")

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.WithField("job", t.name).Info("job stopped: context done")
			return
		case <-t.stopCh:
			logger.Log.WithField("job", t.name).Info("job stopped")
			return
		case <-tk.C:
			tick(ctx)
		}
	}
}

// Stop останавливает задачу. Повторный вызов безопасен.
func (t *ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}
