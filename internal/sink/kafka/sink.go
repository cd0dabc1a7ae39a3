// Package kafka publishes session messages to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/core"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/sink"
)

const Name = "kafka"

const (
	defaultBatchTimeout = 100 * time.Millisecond
	defaultMaxAttempts  = 3

	// errorKey keys ErrorMessages; packet messages are keyed by protocol.
	errorKey = "error"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	writer messageWriter
	topic  string

	sent   atomic.Uint64
	failed atomic.Uint64
	closed atomic.Bool
}

// NewSink builds a synchronous writer so that a failed Send ends the session.
func NewSink(cfg config.KafkaConfig) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka.brokers is required", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka.topic is required", core.ErrConfigInvalid)
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{},
		BatchTimeout:     batchTimeout,
		MaxAttempts:      defaultMaxAttempts,
		CompressionCodec: codec,
		Async:            false,
	})

	log.GetLogger().
		WithField("brokers", cfg.Brokers).
		WithField("topic", cfg.Topic).
		WithField("compression", cfg.Compression).
		Info("kafka sink ready")
	return newSink(w, cfg.Topic), nil
}

func newSink(w messageWriter, topic string) *Sink {
	return &Sink{writer: w, topic: topic}
}

func compressionCodec(name string) (kafka.CompressionCodec, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	default:
		return nil, fmt.Errorf("%w: kafka.compression %q (must be none/gzip/snappy/lz4)", core.ErrConfigInvalid, name)
	}
}

func (s *Sink) Send(ctx context.Context, msg sink.Message) error {
	if s.closed.Load() {
		return core.ErrSinkClosed
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}
	km := kafka.Message{
		Key:   []byte(key(msg)),
		Value: value,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, km); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("%w: topic %s: %w", core.ErrSinkClosed, s.topic, err)
	}
	s.sent.Add(1)
	return nil
}

func (s *Sink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.writer.Close()
	log.GetLogger().
		WithField("topic", s.topic).
		WithField("sent", s.sent.Load()).
		WithField("failed", s.failed.Load()).
		Info("kafka sink closed")
	return err
}

func key(msg sink.Message) string {
	if m, ok := msg.(sink.PacketMessage); ok {
		return m.Protocol.String()
	}
	return errorKey
}
