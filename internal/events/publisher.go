package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/samebrave/StepScape/internal/domain"
)

const (
	// TopicIngested carries one event per ingest batch that stored new data.
	TopicIngested = "step_logs_ingested"
	// TopicSynced carries one event per sync pass that confirmed upserts.
	TopicSynced = "step_logs_synced"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Publisher encodes change events and hands them to a message writer.
// Events are partitioned by user so per-user ordering is preserved.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewPublisher constructs a Publisher on top of writer.
func NewPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer, now: time.Now}
}

// IngestedEvent is the payload published to TopicIngested.
type IngestedEvent struct {
	EventID    string  `json:"event_id"`
	UserID     string  `json:"user_id"`
	Records    int     `json:"records"`
	TotalSteps int     `json:"total_steps"`
	Timestamps []int64 `json:"timestamps"`
	OccurredAt int64   `json:"occurred_at"`
}

// SyncedEvent is the payload published to TopicSynced.
type SyncedEvent struct {
	EventID    string `json:"event_id"`
	UserID     string `json:"user_id"`
	Synced     int    `json:"synced"`
	OccurredAt int64  `json:"occurred_at"`
}

// StepsIngested publishes a batch-ingested event.
func (p *Publisher) StepsIngested(ctx context.Context, userID string, records []domain.StepRecord) error {
	event := IngestedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Records:    len(records),
		Timestamps: make([]int64, 0, len(records)),
		OccurredAt: p.now().UnixMilli(),
	}
	for _, record := range records {
		event.TotalSteps += record.Steps
		event.Timestamps = append(event.Timestamps, record.Timestamp.UnixMilli())
	}
	return p.publish(ctx, TopicIngested, userID, event)
}

// StepsSynced publishes a sync-pass event.
func (p *Publisher) StepsSynced(ctx context.Context, userID string, count int) error {
	event := SyncedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Synced:     count,
		OccurredAt: p.now().UnixMilli(),
	}
	return p.publish(ctx, TopicSynced, userID, event)
}

func (p *Publisher) publish(ctx context.Context, topic, userID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, topic, kafka.Message{
		Key:   []byte(userID),
		Value: body,
		Time:  p.now().UTC(),
	})
}
