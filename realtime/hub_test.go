package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketflow/logger"
)

func TestHub_DeliversOnlyToSubscribedChannels(t *testing.T) {
	hub := NewHub(logger.Nop())
	a := hub.Subscribe(ConversationChannel("c1"))
	b := hub.Subscribe(ConversationChannel("c2"))
	defer a.Close()
	defer b.Close()

	require.NoError(t, hub.Publish(context.Background(), Event{ID: "m1", Channel: ConversationChannel("c1"), Type: EventMessageCreated}))

	select {
	case ev := <-a.C():
		assert.Equal(t, "m1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber on c1 did not receive event")
	}
	select {
	case ev := <-b.C():
		t.Fatalf("subscriber on c2 received %+v", ev)
	default:
	}
}

func TestHub_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(logger.Nop())
	sub := hub.Subscribe("user:u1:buyer")
	defer sub.Close()

	for i := 0; i < hub.buffer+10; i++ {
		hub.Broadcast(Event{ID: "e", Channel: "user:u1:buyer"})
	}
	assert.Len(t, sub.C(), hub.buffer)
}

func TestHub_CloseUnsubscribes(t *testing.T) {
	hub := NewHub(logger.Nop())
	sub := hub.Subscribe("conversation:c1", "user:u1:seller")
	assert.Equal(t, 1, hub.Subscribers("conversation:c1"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers("conversation:c1"))
	assert.Equal(t, 0, hub.Subscribers("user:u1:seller"))

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestDeduper_DropsRepeatsWithinWindow(t *testing.T) {
	d := NewDeduper(2)
	assert.False(t, d.Seen("a"))
	assert.True(t, d.Seen("a"))
	assert.False(t, d.Seen("b"))
	assert.False(t, d.Seen("c"))
	assert.False(t, d.Seen("a"), "a was evicted once the window moved past it")
	assert.False(t, d.Seen(""))
	assert.False(t, d.Seen(""))
}

func TestStream_WritesEventsOnceEach(t *testing.T) {
	hub := NewHub(logger.Nop())
	sub := hub.Subscribe("conversation:c1")

	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan error, 1)
	go func() { done <- hub.Stream(ctx, rec, sub) }()

	ev := Event{ID: "01HX", Channel: "conversation:c1", Type: EventMessageCreated, Data: map[string]string{"text": "hi"}}
	hub.Broadcast(ev)
	hub.Broadcast(ev)
	sub.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not finish after subscription closed")
	}
	cancel()

	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, 1, strings.Count(body, "id: 01HX"))
	assert.Contains(t, body, "event: message.created")
}
