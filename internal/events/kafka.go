package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	kafka "github.com/segmentio/kafka-go"
)

const publishTimeout = 5 * time.Second

// KafkaPublisher ships events to a Kafka topic. Writes are asynchronous so a
// slow or unreachable broker cannot stall a generation.
type KafkaPublisher struct {
	w   *kafka.Writer
	log zerolog.Logger
}

// NewKafkaPublisher connects a writer to the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}
	w.Completion = func(messages []kafka.Message, err error) {
		if err != nil {
			log.Warn().Err(err).Int("messages", len(messages)).Msg("kafka publish failed")
		}
	}
	return &KafkaPublisher{w: w, log: log}
}

func (p *KafkaPublisher) Publish(ev Event) {
	msg, err := buildMessage(ev)
	if err != nil {
		p.log.Warn().Err(err).Str("event", ev.Name).Msg("kafka encode failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn().Err(err).Str("event", ev.Name).Msg("kafka publish failed")
	}
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error { return p.w.Close() }

// buildMessage encodes one event, keying by workload so per-workload ordering
// is preserved within a partition.
func buildMessage(ev Event) (kafka.Message, error) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(ev.Workload), Value: b, Time: ev.Time}, nil
}
