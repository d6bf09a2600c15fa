package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintoons-server/internal/messaging"
	"mintoons-server/internal/models"
)

type stubProgressSource struct {
	rows []models.WriterProgress
	err  error

	gotSince time.Time
}

func (s *stubProgressSource) WeeklyProgress(ctx context.Context, since time.Time) ([]models.WriterProgress, error) {
	s.gotSince = since
	return s.rows, s.err
}

type capturingEmailPublisher struct {
	published []messaging.EmailTaskPayload
	err       error
}

func (p *capturingEmailPublisher) PublishEmail(ctx context.Context, payload messaging.EmailTaskPayload) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, payload)
	return nil
}

func TestWeeklyProgressRunEnqueuesEmails(t *testing.T) {
	source := &stubProgressSource{rows: []models.WriterProgress{
		{UserID: uuid.New(), Email: "mia@example.com", DisplayName: "Mia", Words: 420, Stories: 3},
		{UserID: uuid.New(), Email: "sam@example.com", DisplayName: "Sam", Words: 75, Stories: 1},
	}}
	pub := &capturingEmailPublisher{}
	p := NewWeeklyProgressProducer(source, pub, 7*24*time.Hour, zap.NewNop())

	p.run(context.Background())

	require.Len(t, pub.published, 2)
	first := pub.published[0]
	assert.Equal(t, messaging.EmailWeeklyProgress, first.Kind)
	assert.Equal(t, "mia@example.com", first.To)
	assert.Equal(t, "Mia", first.ToName)
	assert.Equal(t, "420", first.Data["words"])
	assert.Equal(t, "3", first.Data["stories"])

	// The aggregation window matches the interval.
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), source.gotSince, 5*time.Second)
}

func TestWeeklyProgressRunSkipsIdleWriters(t *testing.T) {
	source := &stubProgressSource{rows: []models.WriterProgress{
		{UserID: uuid.New(), Email: "idle@example.com", DisplayName: "Idle", Words: 0, Stories: 2},
		{UserID: uuid.New(), Email: "mia@example.com", DisplayName: "Mia", Words: 12, Stories: 1},
	}}
	pub := &capturingEmailPublisher{}
	p := NewWeeklyProgressProducer(source, pub, time.Hour, zap.NewNop())

	p.run(context.Background())

	require.Len(t, pub.published, 1, "writers with no words get no email")
	assert.Equal(t, "mia@example.com", pub.published[0].To)
}

func TestWeeklyProgressRunSourceError(t *testing.T) {
	source := &stubProgressSource{err: errors.New("connection refused")}
	pub := &capturingEmailPublisher{}
	p := NewWeeklyProgressProducer(source, pub, time.Hour, zap.NewNop())

	p.run(context.Background())
	assert.Empty(t, pub.published)
}

func TestWeeklyProgressStopsOnContextCancel(t *testing.T) {
	p := NewWeeklyProgressProducer(&stubProgressSource{}, &capturingEmailPublisher{}, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after context cancellation")
	}
}
