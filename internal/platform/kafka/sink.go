// Package kafka forwards runtime events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"anagolay/pkg/platform/events"
)

const (
	defaultPartitions  = 3
	defaultReplication = 1
	produceTimeout     = 5 * time.Second
)

// Sink produces one record per event, keyed by event ID.
type Sink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	logger     *slog.Logger
	partitions int32
	clientOpts []kgo.Opt
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPartitions sets the partition count used when the topic is created.
func WithPartitions(n int32) Option {
	return func(o *options) {
		if n > 0 {
			o.partitions = n
		}
	}
}

// WithClientOptions passes extra options to the franz-go client.
func WithClientOptions(opts ...kgo.Opt) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// NewSink connects to brokers and makes sure topic exists.
func NewSink(ctx context.Context, brokers []string, topic string, opts ...Option) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	o := options{logger: slog.Default(), partitions: defaultPartitions}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}, o.clientOpts...)
	client, err := kgo.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}

	if err := ensureTopic(ctx, kadm.NewClient(client), topic, o.partitions); err != nil {
		client.Close()
		return nil, err
	}
	o.logger.InfoContext(ctx, "kafka event sink ready", "topic", topic, "brokers", brokers)
	return &Sink{client: client, topic: topic, logger: o.logger}, nil
}

func ensureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32) error {
	resp, err := admin.CreateTopic(ctx, partitions, defaultReplication, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", topic, err)
	}
	return nil
}

// Record is the JSON value written for each event.
type Record struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Block     uint64 `json:"block"`
	Timestamp string `json:"timestamp"`
	Account   string `json:"account"`
	Actor     string `json:"actor,omitempty"`
	Context   string `json:"context,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Key       string `json:"key,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func toRecord(e events.Event) Record {
	r := Record{
		ID:        e.ID.String(),
		Kind:      string(e.Kind),
		Block:     uint64(e.Block),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Account:   e.Account.String(),
		Context:   e.Context,
		Status:    e.Status,
		Reason:    e.Reason,
		Key:       e.Key,
		RequestID: e.RequestID,
	}
	if !e.Actor.IsNil() {
		r.Actor = e.Actor.String()
	}
	return r
}

// Append produces event and waits for the broker acknowledgement.
func (s *Sink) Append(ctx context.Context, event events.Event) error {
	value, err := json.Marshal(toRecord(event))
	if err != nil {
		return fmt.Errorf("kafka: encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		s.logger.WarnContext(ctx, "failed to produce event",
			"topic", s.topic,
			"kind", string(event.Kind),
			"error", err,
		)
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (s *Sink) Close(ctx context.Context) {
	if err := s.client.Flush(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to flush kafka sink", "error", err)
	}
	s.client.Close()
}
