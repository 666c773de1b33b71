package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/logging"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageHandler processes one decoded ballot event.
type MessageHandler func(ctx context.Context, event *model.BallotEvent) error

type Consumer struct {
	readers []messageReader
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

const defaultGroupID = "ballotbot"

// NewConsumer joins the configured consumer group with up to workers readers.
// The group assigns every partition across all readers of all instances and
// commits offsets, so a restart resumes where the group left off.
func NewConsumer(cfg config.KafkaConfig, workers int) (*Consumer, error) {
	partitions, err := topicPartitions(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infow("kafka topic partitions", "topic", cfg.Topic, "partitions", len(partitions), "group", cfg.GroupID)

	configs := readerConfigs(cfg, workers, len(partitions))
	readers := make([]messageReader, 0, len(configs))
	for _, rc := range configs {
		readers = append(readers, kafka.NewReader(rc))
	}
	return newConsumer(readers...), nil
}

// readerConfigs builds one group reader per worker. Readers beyond the
// partition count would sit idle in the group, so workers is capped there.
func readerConfigs(cfg config.KafkaConfig, workers, partitions int) []kafka.ReaderConfig {
	if workers <= 0 {
		workers = 1
	}
	if partitions > 0 && workers > partitions {
		workers = partitions
	}
	group := cfg.GroupID
	if group == "" {
		group = defaultGroupID
	}

	configs := make([]kafka.ReaderConfig, workers)
	for i := range configs {
		configs[i] = kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     group,
			StartOffset: kafka.LastOffset,
			MinBytes:    10e3,
			MaxBytes:    10e6,
		}
	}
	return configs
}

func newConsumer(readers ...messageReader) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{readers: readers, ctx: ctx, cancel: cancel}
}

// Start runs one goroutine per reader until Stop is called.
func (c *Consumer) Start(handler MessageHandler) {
	for i, r := range c.readers {
		c.wg.Add(1)
		go func(workerID int, r messageReader) {
			defer c.wg.Done()
			c.consume(workerID, r, handler)
		}(i, r)
	}
	logging.Logger.Infow("kafka consumers started", "workers", len(c.readers))
}

func (c *Consumer) consume(workerID int, reader messageReader, handler MessageHandler) {
	for {
		m, err := reader.ReadMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logging.Logger.Warnw("read kafka message", "worker", workerID, "error", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeEvent(m)
		if err != nil {
			logging.Logger.Warnw("drop undecodable ballot event", "worker", workerID, "offset", m.Offset, "error", err)
			continue
		}
		if err := handler(c.ctx, event); err != nil {
			logging.Logger.Warnw("handle ballot event", "worker", workerID, "kind", event.Kind, "error", err)
		}
	}
}

func decodeEvent(m kafka.Message) (*model.BallotEvent, error) {
	var event model.BallotEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal ballot event: %w", err)
	}
	return &event, nil
}

// Stop cancels the readers, waits for in-flight handlers and closes them.
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	var errs []error
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
