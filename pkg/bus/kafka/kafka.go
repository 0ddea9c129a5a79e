// Package kafka carries saga messages over Apache Kafka. Every service reads
// its topics through one consumer group and commits an offset only after the
// handler succeeded.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/order-saga/pkg/bus"
	"github.com/angelmondragon/order-saga/pkg/config"
	"github.com/angelmondragon/order-saga/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus is a kafka-go backed bus.Transport.
type Bus struct {
	brokers   []string
	group     string
	maxWait   time.Duration
	writer    messageWriter
	newReader func(topics []string) messageReader
	logg      *logger.Logger
}

// New builds a producer for all topics and a reader factory bound to group.
func New(cfg config.KafkaConfig, group string, logg *logger.Logger) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if group == "" {
		return nil, errors.New("kafka consumer group is required")
	}
	b := &Bus{
		brokers: cfg.Brokers,
		group:   group,
		maxWait: cfg.MaxWait,
		logg:    logg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           cfg.BatchTimeout,
			WriteTimeout:           cfg.WriteTimeout,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
	b.newReader = b.reader
	return b, nil
}

func (b *Bus) reader(topics []string) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     b.group,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     b.maxWait,
		StartOffset: kafka.FirstOffset,
	})
}

// Publish writes msg synchronously, waiting for every in-sync replica.
func (b *Bus) Publish(ctx context.Context, msg bus.Message) error {
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Data,
		Time:  time.Now(),
	})
}

// Subscribe fetches from topics, handing each message to h and committing
// its offset afterwards. A handler error leaves the offset uncommitted.
func (b *Bus) Subscribe(ctx context.Context, topics []string, h bus.Handler) (err error) {
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}
	r := b.newReader(topics)
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil && ctx.Err() == nil {
			err = fmt.Errorf("closing kafka reader: %w", cerr)
		}
	}()

	if b.logg != nil {
		b.logg.Info(b.logg.WithFields(ctx, map[string]any{"group": b.group, "topics": topics}), "kafka subscription started")
	}

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetching kafka message: %w", err)
		}
		if err := h(ctx, bus.Message{Topic: m.Topic, Key: string(m.Key), Data: m.Value}); err != nil {
			return bus.HandlerError(m.Topic, err)
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing kafka offset: %w", err)
		}
	}
}

// Ping dials the first reachable broker.
func (b *Bus) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range b.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (b *Bus) Close() error {
	return b.writer.Close()
}
