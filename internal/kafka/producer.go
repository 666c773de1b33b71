package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes ballot events to the configured topic.
type Producer struct {
	writer         messageWriter
	partitionCount int
}

func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	partitions, err := topicPartitions(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infow("kafka producer ready", "topic", cfg.Topic, "partitions", len(partitions))

	// Hash on the message key so events for one item stay ordered.
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	}
	p := NewProducerWithWriter(writer)
	p.partitionCount = len(partitions)
	return p, nil
}

func NewProducerWithWriter(w messageWriter) *Producer {
	return &Producer{writer: w}
}

// Publish sends one ballot event.
func (p *Producer) Publish(ctx context.Context, event *model.BallotEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ballot event: %w", err)
	}

	key := event.Item
	if key == "" {
		key = event.Kind
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write ballot event: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// topicPartitions lists the partition ids of cfg.Topic via the first broker.
func topicPartitions(ctx context.Context, cfg config.KafkaConfig) ([]int, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialLeader(ctx, "tcp", cfg.Brokers[0], cfg.Topic, 0)
	if err != nil {
		return nil, fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("read partitions: %w", err)
	}
	var ids []int
	for _, p := range partitions {
		if p.Topic == cfg.Topic {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
