// Package kafka writes audit events to a Kafka topic with franz-go.
//
// Events are keyed by site so a consumer sees one site's changes in commit
// order. The sink is best-effort: the business operation has already
// committed when an event is produced, so failures are reported to the
// caller but never roll anything back.
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

	audit "ezweb/pkg/platform/audit"
)

// ErrCircuitOpen is returned while produce attempts are suspended.
var ErrCircuitOpen = errors.New("kafka sink circuit open")

const defaultProduceTimeout = 5 * time.Second

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher implements audit.Store on top of a Kafka topic.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	metrics  *Metrics
	breaker  *breaker
	timeout  time.Duration
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCircuitBreaker overrides the failure threshold and cooldown.
func WithCircuitBreaker(threshold int, cooldown time.Duration) Option {
	return func(p *Publisher) {
		p.breaker = newBreaker(threshold, cooldown)
	}
}

func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		breaker:  newBreaker(0, 0),
		timeout:  defaultProduceTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewClient builds a franz-go client for the given brokers.
func NewClient(brokers []string, clientID string) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Append produces the event synchronously.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	if !p.breaker.allow() {
		if p.metrics != nil {
			p.metrics.Dropped.Inc()
		}
		return ErrCircuitOpen
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Key()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.recordFailure(ctx, event, err)
		return fmt.Errorf("produce audit event: %w", err)
	}

	p.breaker.success()
	if p.metrics != nil {
		p.metrics.Produced.Inc()
		p.metrics.BreakerState.Set(0)
	}
	return nil
}

func (p *Publisher) recordFailure(ctx context.Context, event audit.Event, err error) {
	opened := p.breaker.failure()
	if p.metrics != nil {
		p.metrics.Failures.Inc()
		if opened {
			p.metrics.BreakerState.Set(1)
		}
	}
	if p.logger != nil {
		p.logger.WarnContext(ctx, "failed to produce audit event",
			"action", string(event.Action),
			"topic", p.topic,
			"breaker_opened", opened,
			"error", err,
		)
	}
}
