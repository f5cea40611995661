package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "changesets", map[string]int{"added": 1})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "changesets", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	msgs[0].Topic = "modified"
	require.Equal(t, "changesets", pub.Messages()[0].Topic)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("unavailable")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "changesets", nil)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())
}
