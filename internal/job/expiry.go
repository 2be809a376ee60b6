package job

import (
	"context"
	"time"

	"github.com/ignatzorin/escrow-backend/internal/logger"
)

type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// ExpiryJob переводит просроченные неоплаченные ссылки в EXPIRED.
type ExpiryJob struct {
	ticker
	expirer   Expirer
	batchSize int
}

func NewExpiryJob(expirer Expirer, interval time.Duration, batchSize int) *ExpiryJob {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpiryJob{ticker: newTicker("expiry", interval), expirer: expirer, batchSize: batchSize}
}

func (j *ExpiryJob) Start(ctx context.Context) {
	j.run(ctx, j.RunOnce)
}

// RunOnce обрабатывает одну пачку.
func (j *ExpiryJob) RunOnce(ctx context.Context) {
	if _, err := j.expirer.ExpireDue(ctx, j.batchSize); err != nil {
		logger.Log.WithField("job", j.name).WithError(err).Error("expiry sweep failed")
	}
}
