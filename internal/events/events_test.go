package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesdesk/internal/domain"
)

func TestNewBuildsEnvelope(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	actor := domain.Actor{ID: 7, Role: domain.RoleDealer, Token: "secret"}

	evt, err := New(SubjectSalePosted, "main", actor, map[string]int{"sale_id": 42}, at)
	require.NoError(t, err)

	assert.Equal(t, SubjectSalePosted, evt.Subject)
	assert.Equal(t, int64(7), evt.ActorID)
	assert.Equal(t, time.UTC, evt.OccurredAt.Location())
	assert.JSONEq(t, `{"sale_id":42}`, string(evt.Payload))

	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestNATSPublisherIntegration(t *testing.T) {
	url := os.Getenv("SALESDESK_TEST_NATS_URL")
	if url == "" {
		t.Skip("SALESDESK_TEST_NATS_URL is not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(SubjectReturnRequested, msgs)
	require.NoError(t, err)
	defer func() { _ = s.Unsubscribe() }()
	require.NoError(t, sub.Flush())

	pub, err := NewNATSPublisher(url, "salesdesk-test", nil)
	require.NoError(t, err)
	defer pub.Close()

	evt, err := New(SubjectReturnRequested, "main", domain.Actor{ID: 1, Role: domain.RoleAdmin}, map[string]string{"condition": "healthy"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), evt))

	select {
	case msg := <-msgs:
		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, evt.ID, got.ID)
		assert.Equal(t, evt.ID, msg.Header.Get(nats.MsgIdHdr))
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
