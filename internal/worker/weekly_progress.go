package worker

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

// progressSource is the slice of the story repository the producer needs.
type progressSource interface {
	WeeklyProgress(ctx context.Context, since time.Time) ([]models.WriterProgress, error)
}

// WeeklyProgressProducer periodically aggregates each writer's recent
// activity and enqueues a progress summary email. Runs inside the worker
// so only one instance produces the summaries.
type WeeklyProgressProducer struct {
	stories  progressSource
	emailPub messaging.EmailPublisher
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewWeeklyProgressProducer creates a producer ticking at interval,
// which is also the aggregation window.
func NewWeeklyProgressProducer(
	stories progressSource,
	emailPub messaging.EmailPublisher,
	interval time.Duration,
	logger *zap.Logger,
) *WeeklyProgressProducer {
	return &WeeklyProgressProducer{
		stories:  stories,
		emailPub: emailPub,
		interval: interval,
		logger:   logger.Named("WeeklyProgressProducer"),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop until the context is cancelled.
func (p *WeeklyProgressProducer) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.logger.Info("Weekly progress producer started", zap.Duration("interval", p.interval))
		for {
			select {
			case <-ctx.Done():
				p.logger.Info("Weekly progress producer stopping")
				return
			case <-ticker.C:
				p.run(ctx)
			}
		}
	}()
}

// Done is closed once the ticker loop has exited.
func (p *WeeklyProgressProducer) Done() <-chan struct{} {
	return p.done
}

// run aggregates one window and enqueues an email per active writer.
func (p *WeeklyProgressProducer) run(ctx context.Context) {
	since := time.Now().Add(-p.interval)
	rows, err := p.stories.WeeklyProgress(ctx, since)
	if err != nil {
		p.logger.Error("Failed to aggregate weekly progress", zap.Error(err))
		return
	}

	sent := 0
	for _, row := range rows {
		if row.Words <= 0 {
			continue
		}
		err := p.emailPub.PublishEmail(ctx, messaging.EmailTaskPayload{
			Kind:   messaging.EmailWeeklyProgress,
			To:     row.Email,
			ToName: row.DisplayName,
			Data: map[string]string{
				"name":    row.DisplayName,
				"words":   strconv.Itoa(row.Words),
				"stories": strconv.Itoa(row.Stories),
			},
		})
		if err != nil {
			p.logger.Error("Failed to enqueue weekly progress email",
				zap.Error(err), zap.String("userID", row.UserID.String()))
			continue
		}
		sent++
	}
	p.logger.Info("Weekly progress emails enqueued", zap.Int("writers", len(rows)), zap.Int("sent", sent))
}
