//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	platformkafka "eventpass/internal/platform/kafka"
	id "eventpass/pkg/domain"
	audit "eventpass/pkg/platform/audit"
	"eventpass/pkg/testutil/containers"
)

func TestStoreAgainstRedpanda(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	ctx := context.Background()
	topic := "checkin-audit-" + uuid.NewString()[:8]

	client, err := platformkafka.NewClient(platformkafka.Config{Brokers: []string{broker.Brokers}})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, platformkafka.EnsureTopic(ctx, client, topic, 1, 1))

	operator := id.UserID(uuid.New())
	require.NoError(t, New(client, topic).Append(ctx, audit.Event{
		Timestamp: time.Now(),
		Action:    string(audit.EventCheckInRecorded),
		ActorID:   operator,
		Subject:   "4812",
		EventID:   "77",
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollRecords(pollCtx, 1)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	var payload Payload
	require.NoError(t, json.Unmarshal(records[0].Value, &payload))
	assert.Equal(t, operator.String(), payload.ActorID)
	assert.Equal(t, "compliance", payload.Category)
}
