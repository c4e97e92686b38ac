//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "ezweb/pkg/domain"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/audit/publishers/kafka"
	"ezweb/pkg/testutil/containers"
)

type PublisherSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
}

func TestPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())

	client, err := kafka.NewClient(s.redpanda.Brokers, "ezweb-test")
	s.Require().NoError(err)
	s.client = client
}

func (s *PublisherSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *PublisherSuite) newTopic(ctx context.Context) string {
	topic := "composition-events-" + uuid.NewString()[:8]
	s.Require().NoError(kafka.EnsureTopic(ctx, s.client, topic, 3, 1))
	return topic
}

func (s *PublisherSuite) consume(ctx context.Context, topic string, want int) []*kgo.Record {
	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < want {
		fetches := consumer.PollFetches(ctx)
		if ctx.Err() != nil {
			break
		}
		s.Require().Empty(fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	return records
}

func (s *PublisherSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := s.newTopic(ctx)
	s.NoError(kafka.EnsureTopic(ctx, s.client, topic, 3, 1))
}

func (s *PublisherSuite) TestEventsOfOneSiteKeepTheirOrder() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := s.newTopic(ctx)
	pub := kafka.New(s.client, topic)

	actions := []audit.Action{
		audit.ActionBindingAdded,
		audit.ActionBindingUpdated,
		audit.ActionBindingsReordered,
		audit.ActionBindingDeleted,
	}
	for _, action := range actions {
		s.Require().NoError(pub.Append(ctx, audit.Event{
			ID:        uuid.New(),
			Action:    action,
			Timestamp: time.Now().UTC(),
			ActorID:   id.UserID(1),
			SiteID:    id.SiteID(42),
		}))
	}

	records := s.consume(ctx, topic, len(actions))
	s.Require().Len(records, len(actions))
	for i, r := range records {
		s.Equal("site:42", string(r.Key))

		var got audit.Event
		s.Require().NoError(json.Unmarshal(r.Value, &got))
		s.Equal(actions[i], got.Action, "record %d out of order", i)
		s.Equal(id.SiteID(42), got.SiteID)
	}
}
