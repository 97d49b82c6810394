// Package kafka publishes snapshot notifications for downstream consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// SnapshotNotice announces one successful hot/cold flip. Downstream
// consumers (alerting, cache warmers) use it to re-read the snapshot
// instead of polling on a timer.
type SnapshotNotice struct {
	Feed        string    `json:"feed"`
	Sites       int       `json:"sites"`
	HotLabel    string    `json:"hot_label"`
	PublishedAt time.Time `json:"published_at"`
}

// Notifier produces snapshot notices to a Kafka topic.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the snapshot topic.
func NewNotifier(brokers []string, topic string, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// SnapshotPublished emits one notice. Failures are the caller's to log; a
// missed notice never rolls back a publish.
func (n *Notifier) SnapshotPublished(ctx context.Context, feed string, sites int, hotLabel string, publishedAt time.Time) error {
	msg, err := serializeNotice(SnapshotNotice{
		Feed:        feed,
		Sites:       sites,
		HotLabel:    hotLabel,
		PublishedAt: publishedAt,
	})
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeNotice marshals a notice into a Kafka message keyed by feed, so
// per-feed ordering is preserved within a partition.
func serializeNotice(notice SnapshotNotice) (kafkago.Message, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(notice.Feed),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "feed", Value: []byte(notice.Feed)},
			{Key: "published_at", Value: []byte(notice.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
