package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/samebrave/StepScape/internal/domain"
)

type stubWriter struct {
	topic    string
	messages []kafka.Message
	err      error
}

func (w *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.topic = topic
	w.messages = append(w.messages, msgs...)
	return nil
}

func TestStepsIngestedPublishesBatchEvent(t *testing.T) {
	writer := &stubWriter{}
	publisher := NewPublisher(writer)
	now := time.Date(2025, time.November, 3, 10, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return now }

	records := []domain.StepRecord{
		{Timestamp: now.Add(-2 * time.Hour), Steps: 50, UserID: "user-1"},
		{Timestamp: now.Add(-time.Hour), Steps: 30, UserID: "user-1"},
	}
	require.NoError(t, publisher.StepsIngested(context.Background(), "user-1", records))

	require.Equal(t, TopicIngested, writer.topic)
	require.Len(t, writer.messages, 1)
	require.Equal(t, []byte("user-1"), writer.messages[0].Key)

	var event IngestedEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
	require.NotEmpty(t, event.EventID)
	require.Equal(t, "user-1", event.UserID)
	require.Equal(t, 2, event.Records)
	require.Equal(t, 80, event.TotalSteps)
	require.Len(t, event.Timestamps, 2)
	require.Equal(t, now.UnixMilli(), event.OccurredAt)
}

func TestStepsSyncedPublishesPassEvent(t *testing.T) {
	writer := &stubWriter{}
	publisher := NewPublisher(writer)

	require.NoError(t, publisher.StepsSynced(context.Background(), "user-1", 3))

	require.Equal(t, TopicSynced, writer.topic)
	require.Len(t, writer.messages, 1)

	var event SyncedEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &event))
	require.Equal(t, "user-1", event.UserID)
	require.Equal(t, 3, event.Synced)
}

func TestPublishPropagatesWriterError(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker down")}
	publisher := NewPublisher(writer)

	err := publisher.StepsSynced(context.Background(), "user-1", 1)
	require.ErrorIs(t, err, writer.err)
}
