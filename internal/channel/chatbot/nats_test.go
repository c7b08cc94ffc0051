package chatbot

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newInboundTransport builds a NATSTransport without a live connection; the
// inbound path (onInbound, FetchEvents) never touches it.
func newInboundTransport(t *testing.T) *NATSTransport {
	t.Helper()
	return &NATSTransport{
		log:    testLogger(t).WithChannel("nats"),
		notify: make(chan struct{}, 1),
	}
}

func injectInbound(t *testing.T, tr *NATSTransport, ev InboundEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	tr.onInbound(&nats.Msg{Data: data})
}

func TestNATSFetchEventsDropsDeliveredEvents(t *testing.T) {
	tr := newInboundTransport(t)
	ctx := context.Background()

	injectInbound(t, tr, InboundEvent{Kind: "action", Token: "ab12cd34:opt:yes"})
	injectInbound(t, tr, InboundEvent{Kind: "text", Text: "aurora"})

	events, next, err := tr.FetchEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), next)
	assert.Equal(t, EventAction, events[0].Kind)
	assert.Equal(t, "ab12cd34:opt:yes", events[0].Token)
	assert.Equal(t, "aurora", events[1].Text)

	// Delivered events must be released, not retained behind the cursor.
	tr.mu.Lock()
	assert.Empty(t, tr.queue)
	assert.Equal(t, int64(2), tr.base)
	tr.mu.Unlock()

	injectInbound(t, tr, InboundEvent{Kind: "text", Text: "borealis"})

	events, next, err = tr.FetchEvents(ctx, next)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "borealis", events[0].Text)
	assert.Equal(t, int64(3), next)

	tr.mu.Lock()
	assert.Empty(t, tr.queue)
	tr.mu.Unlock()
}

func TestNATSInboundDropsMalformedEvents(t *testing.T) {
	tr := newInboundTransport(t)

	tr.onInbound(&nats.Msg{Data: []byte("{not json")})
	injectInbound(t, tr, InboundEvent{Kind: "carrier-pigeon"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := tr.FetchEvents(ctx, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
