package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier serves canned catchup rows.
type fakeQuerier struct {
	rows []CatchupEvent
	err  error
}

func (f *fakeQuerier) EventsSince(_ context.Context, _ string, sinceID int64, _ int) ([]CatchupEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []CatchupEvent
	for _, row := range f.rows {
		if row.ID > sinceID {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestBroker_BroadcastDelivers(t *testing.T) {
	b := NewBroker(nil)
	sub, err := b.Subscribe(context.Background(), "enrichment:s1", 0)
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	b.Broadcast("enrichment:s1", []byte(`{"type":"layer1_complete"}`))
	b.Broadcast("enrichment:other", []byte(`{"type":"layer1_complete"}`))

	payload := <-sub.C
	assert.JSONEq(t, `{"type":"layer1_complete"}`, string(payload))
	assert.Empty(t, sub.C, "events for other channels must not arrive")
}

func TestBroker_CatchupReplaysDurableLog(t *testing.T) {
	querier := &fakeQuerier{rows: []CatchupEvent{
		{ID: 4, Payload: map[string]any{"type": "layer1_complete"}},
		{ID: 7, Payload: map[string]any{"type": "layer2_complete"}},
	}}
	b := NewBroker(querier)

	sub, err := b.Subscribe(context.Background(), "enrichment:s1", 4)
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	payload := <-sub.C
	var got map[string]any
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "layer2_complete", got["type"])
	assert.EqualValues(t, 7, got["db_event_id"])
	assert.Empty(t, sub.C, "rows at or before sinceID must not replay")
}

func TestBroker_TruncatedStubReplaysFullFromLog(t *testing.T) {
	// A NOTIFY over the postgres payload ceiling arrives as a routing
	// stub; the durable row still holds the full event, so reconnecting
	// with a Last-Event-ID below the stub's id replays it in full.
	full := map[string]any{
		"type":   "layer3_complete",
		"fields": map[string]any{"description": "texto completo"},
	}
	querier := &fakeQuerier{rows: []CatchupEvent{{ID: 9, Payload: full}}}
	b := NewBroker(querier)

	live, err := b.Subscribe(context.Background(), "enrichment:s1", 9)
	require.NoError(t, err)
	defer b.Unsubscribe(live)

	b.Broadcast("enrichment:s1", []byte(`{"type":"layer3_complete","db_event_id":9,"truncated":true}`))
	var stub map[string]any
	require.NoError(t, json.Unmarshal(<-live.C, &stub))
	assert.Equal(t, true, stub["truncated"])
	assert.EqualValues(t, 9, stub["db_event_id"])

	reconnect, err := b.Subscribe(context.Background(), "enrichment:s1", 8)
	require.NoError(t, err)
	defer b.Unsubscribe(reconnect)

	var replayed map[string]any
	require.NoError(t, json.Unmarshal(<-reconnect.C, &replayed))
	assert.Equal(t, "layer3_complete", replayed["type"])
	assert.NotContains(t, replayed, "truncated")
	assert.Equal(t, map[string]any{"description": "texto completo"}, replayed["fields"])
}

func TestBroker_CatchupFailureDegradesToLive(t *testing.T) {
	b := NewBroker(&fakeQuerier{err: errors.New("db down")})

	sub, err := b.Subscribe(context.Background(), "enrichment:s1", 0)
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	b.Broadcast("enrichment:s1", []byte(`{"type":"layer1_complete"}`))
	assert.NotEmpty(t, sub.C)
}

func TestBroker_SlowConsumerDropsFromTail(t *testing.T) {
	b := NewBroker(nil)
	sub, err := b.Subscribe(context.Background(), "submission:1", 0)
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+5; i++ {
		b.Broadcast("submission:1", []byte(`{"type":"stage_complete"}`))
	}

	assert.Equal(t, 5, sub.Dropped())
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestBroker_StampsDroppedIntoPipelineComplete(t *testing.T) {
	b := NewBroker(nil)
	sub, err := b.Subscribe(context.Background(), "submission:1", 0)
	require.NoError(t, err)
	defer b.Unsubscribe(sub)

	for i := 0; i < subscriberBuffer+3; i++ {
		b.Broadcast("submission:1", []byte(`{"type":"stage_complete"}`))
	}
	for i := 0; i < subscriberBuffer; i++ {
		<-sub.C
	}

	b.Broadcast("submission:1", []byte(`{"type":"pipeline_complete","report_available":true}`))

	var got map[string]any
	require.NoError(t, json.Unmarshal(<-sub.C, &got))
	assert.EqualValues(t, 3, got["events_dropped"])
	assert.Equal(t, true, got["report_available"])
}

func TestBroker_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker(nil)
	sub, err := b.Subscribe(context.Background(), "submission:1", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, b.ActiveSubscribers())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.ActiveSubscribers())

	_, open := <-sub.C
	assert.False(t, open)

	// Broadcasting after unsubscribe is a no-op, not a panic.
	b.Broadcast("submission:1", []byte(`{"type":"stage_complete"}`))
}

func TestChannels(t *testing.T) {
	assert.Equal(t, "enrichment:abc", EnrichmentChannel("abc"))
	assert.Equal(t, "submission:42", SubmissionChannel(42))
}
