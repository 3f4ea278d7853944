package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/xrpauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAuthenticated(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	issued := time.Unix(1_700_000_000, 0).UTC()
	session := core.Session{
		ID:        "sid",
		Address:   "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
		Provider:  core.ProviderGem,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(7 * 24 * time.Hour),
		Token:     "never-published",
	}
	require.NoError(t, NewWatermillPublisher(pubSub, "").PublishAuthenticated(ctx, session))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, "sid", msg.UUID)
		assert.NotContains(t, string(msg.Payload), "never-published")

		var event AuthenticatedEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		assert.Equal(t, session.Address, event.Address)
		assert.Equal(t, core.ProviderGem, event.Provider)
		assert.True(t, session.ExpiresAt.Equal(event.ExpiresAt))
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
