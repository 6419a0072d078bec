package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "resolutions", map[string]string{"date": "2024-03-05"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "resolutions", msgs[0].Topic)
	require.Len(t, pub.Topic("other"), 1)
	require.Empty(t, pub.Topic("missing"))

	msgs[0].Topic = "modified"
	require.Equal(t, "resolutions", pub.Messages()[0].Topic)
}

func TestPublishHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "resolutions", "x")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, New().Messages())
}
