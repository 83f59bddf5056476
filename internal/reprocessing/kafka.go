package reprocessing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// scraperEventMessage is the wire shape external scrapers publish to
// scraper.events: `{"type":"scraper:completed",
// "source":...}`. The engine only ever consumes this topic — nothing it
// does publishes to it.
type scraperEventMessage struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// KafkaConsumer reads scraper.events and republishes every decodable
// scraper:completed message onto the controller's in-process Bus,
// unifying both trigger sources (channel and Kafka) behind one drain loop.
type KafkaConsumer struct {
	reader *kafka.Reader
	bus    *Bus
	logger *slog.Logger
}

// NewKafkaConsumer constructs a consumer group reader over brokers/topic/
// groupID. The reader is not started until Run is called.
func NewKafkaConsumer(brokers []string, topic, groupID string, bus *Bus, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})

	return &KafkaConsumer{reader: reader, bus: bus, logger: logger}
}

// Run reads messages until ctx is canceled or the reader is closed,
// decoding each payload and publishing a matching Trigger onto the bus.
// A malformed message is logged and skipped rather than aborting the
// consumer — one bad publish from an external scraper must not stop the
// whole reprocessing pipeline from hearing about the next good one.
func (k *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reprocessing: read scraper.events: %w", err)
		}

		var decoded scraperEventMessage
		if err := json.Unmarshal(msg.Value, &decoded); err != nil {
			k.logger.Warn("discarding malformed scraper.events message", slog.String("error", err.Error()))
			continue
		}

		if decoded.Type != string(TriggerScraperCompleted) {
			continue
		}

		k.bus.Publish(Trigger{Type: TriggerScraperCompleted, Source: decoded.Source})
	}
}

// Close releases the consumer group's underlying connection.
func (k *KafkaConsumer) Close() error {
	return k.reader.Close()
}
