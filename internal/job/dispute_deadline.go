package job

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

type OverdueLister interface {
	ListOverdue(ctx context.Context, limit int) ([]models.Dispute, error)
}

// DisputeDeadlineJob сообщает о спорах с истёкшим сроком. Споры не решаются автоматически.
type DisputeDeadlineJob struct {
	ticker
	disputes  OverdueLister
	batchSize int
}

func NewDisputeDeadlineJob(disputes OverdueLister, interval time.Duration, batchSize int) *DisputeDeadlineJob {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &DisputeDeadlineJob{ticker: newTicker("dispute_deadline", interval), disputes: disputes, batchSize: batchSize}
}

func (j *DisputeDeadlineJob) Start(ctx context.Context) {
	j.run(ctx, func(ctx context.Context) { j.RunOnce(ctx) })
}

// RunOnce логирует просроченные споры и возвращает их количество.
func (j *DisputeDeadlineJob) RunOnce(ctx context.Context) int {
	overdue, err := j.disputes.ListOverdue(ctx, j.batchSize)
	if err != nil {
		logger.Log.WithField("job", j.name).WithError(err).Error("dispute deadline: query failed")
		return 0
	}
	for _, d := range overdue {
		logger.Log.WithFields(logrus.Fields{
			"job":            j.name,
			"dispute_id":     d.ID,
			"transaction_id": d.TransactionID,
			"status":         d.Status,
			"deadline":       d.Deadline,
		}).Warn("dispute overdue")
	}
	return len(overdue)
}
