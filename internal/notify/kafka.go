package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"mediagen/internal/domain"
)

// JobEvent is published when a job reaches a terminal state. Downstream
// consumers (billing exports, user-facing notification fan-out) key on
// job_id.
type JobEvent struct {
	JobID  string `json:"job_id"`
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	At     string `json:"at"`
}

// Notifier publishes job lifecycle events.
type Notifier interface {
	JobFinished(ctx context.Context, job *domain.Job)
}

// KafkaNotifier writes terminal job events to a Kafka topic. Publishing is
// best effort: a broker outage must never fail the job that triggered it.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaNotifier creates a notifier for the given brokers and topic.
// Returns nil when no brokers are configured, and a nil notifier is a
// safe no-op.
func NewKafkaNotifier(brokers []string, topic string, logger zerolog.Logger) *KafkaNotifier {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	return &KafkaNotifier{writer: writer, logger: logger}
}

// JobFinished publishes a terminal transition. Failures are logged and
// swallowed.
func (n *KafkaNotifier) JobFinished(ctx context.Context, job *domain.Job) {
	if n == nil || n.writer == nil || job == nil {
		return
	}
	event := JobEvent{
		JobID:  job.ID,
		UserID: job.UserID,
		Kind:   string(job.Kind),
		Status: string(job.Status),
		Error:  job.Error,
		At:     time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error().Err(err).Str("job_id", job.ID).Msg("encode job event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(job.ID),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Error().Err(err).Str("job_id", job.ID).Msg("publish job event")
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
