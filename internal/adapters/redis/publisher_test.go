package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compudrive/drivebench/internal/domain/model"
	"github.com/compudrive/drivebench/internal/notify"
	"github.com/compudrive/drivebench/internal/testutil"
)

func TestNewPublisherRequiresClient(t *testing.T) {
	_, err := NewPublisher(PublisherOptions{})
	require.Error(t, err)
}

func TestPublisherPublishesOnBothChannels(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	pub, err := NewPublisher(PublisherOptions{Client: client})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, DefaultChannel, DefaultChannel+":test_progress")
	defer sub.Close()
	// Wait for the subscription before publishing.
	_, err = sub.Receive(ctx)
	require.NoError(t, err)
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	ev := notify.Event{
		Kind: notify.KindTestProgress,
		Test: &notify.TestEvent{
			JobID:           "job-1",
			Device:          "/dev/sdb",
			TestType:        model.TestTypeSmartFull,
			State:           model.TestStateRunning,
			ProgressPercent: 42,
		},
	}
	require.NoError(t, pub.Publish(ctx, ev))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg, recvErr := sub.ReceiveMessage(ctx)
		require.NoError(t, recvErr)
		seen[msg.Channel] = true

		var got notify.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, notify.KindTestProgress, got.Kind)
		require.NotNil(t, got.Test)
		assert.Equal(t, "job-1", got.Test.JobID)
		assert.InDelta(t, 42, got.Test.ProgressPercent, 0.01)
	}
	assert.True(t, seen[DefaultChannel])
	assert.True(t, seen[DefaultChannel+":test_progress"])
}

func TestPublisherCustomChannel(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	pub, err := NewPublisher(PublisherOptions{Client: client, Channel: "bench:custom"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "bench:custom")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, notify.Event{Kind: notify.KindDrivesUpdated}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bench:custom", msg.Channel)
}
