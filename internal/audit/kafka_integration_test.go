//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"bioanchor/internal/audit"
	"bioanchor/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	broker string
	sink   *audit.Kafka
	topic  string
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.broker = mgr.GetRedpanda(s.T()).Broker
	s.topic = "bioanchor.audit.test"

	sink, err := audit.NewKafka([]string{s.broker}, s.topic)
	s.Require().NoError(err)
	s.sink = sink

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(s.sink.EnsureTopic(ctx, 1))
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.sink != nil {
		s.sink.Close()
	}
}

func (s *KafkaSinkSuite) TestAppendProducesKeyedEvent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := audit.Event{
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Actor:     "user-kafka",
		DID:       "did:bioanchor:kafkatest",
		Action:    audit.ActionBiometricVerified,
		Outcome:   "verified",
		Detail:    map[string]any{"modality": "fingerprint"},
	}
	s.Require().NoError(s.sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	last := records[len(records)-1]
	s.Equal([]byte(event.DID), last.Key)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(last.Value, &got))
	s.Equal(event.Action, got.Action)
	s.Equal(event.Outcome, got.Outcome)
	s.Equal(event.Actor, got.Actor)
}

// EnsureTopic must tolerate the topic already existing so restarts are clean.
func (s *KafkaSinkSuite) TestEnsureTopicIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.NoError(s.sink.EnsureTopic(ctx, 1))
}
