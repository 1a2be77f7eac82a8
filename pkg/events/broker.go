package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBuffer bounds each subscriber's delivery queue. A slow
	// consumer drops from the tail; the durable log remains authoritative.
	subscriberBuffer = 64

	catchupLimit  = 200
	listenTimeout = 10 * time.Second
)

// CatchupEvent is one row from the durable event log.
type CatchupEvent struct {
	ID      int64
	Payload map[string]any
}

// CatchupQuerier reads missed events from the durable log.
type CatchupQuerier interface {
	EventsSince(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error)
}

// Subscription is one SSE consumer's view of a channel. Events arrive
// on C; Dropped counts tail drops caused by a full buffer.
type Subscription struct {
	ID      string
	Channel string
	C       chan []byte

	mu      sync.Mutex
	dropped int
	closed  bool
}

// Dropped returns how many events this subscriber has lost so far.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Broker routes NOTIFY payloads to local SSE subscribers. One broker
// per process; the Listener feeds it, handlers subscribe to it.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*Subscription // channel → sub id → sub
	querier CatchupQuerier

	listenerMu sync.RWMutex
	listener   *Listener
}

// NewBroker creates a broker over the catchup querier.
func NewBroker(querier CatchupQuerier) *Broker {
	return &Broker{
		subs:    make(map[string]map[string]*Subscription),
		querier: querier,
	}
}

// SetListener wires the LISTEN connection, once, at startup.
func (b *Broker) SetListener(l *Listener) {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listener = l
}

// Subscribe registers a consumer on a channel and replays the durable
// log from sinceID before any live event is delivered. LISTEN is
// established first so no event can fall between catchup and live.
func (b *Broker) Subscribe(ctx context.Context, channel string, sinceID int64) (*Subscription, error) {
	sub := &Subscription{
		ID:      uuid.New().String(),
		Channel: channel,
		C:       make(chan []byte, subscriberBuffer),
	}

	b.mu.Lock()
	needsListen := false
	if _, ok := b.subs[channel]; !ok {
		b.subs[channel] = make(map[string]*Subscription)
		needsListen = true
	}
	b.subs[channel][sub.ID] = sub
	b.mu.Unlock()

	if needsListen {
		b.listenerMu.RLock()
		l := b.listener
		b.listenerMu.RUnlock()
		if l != nil {
			listenCtx, cancel := context.WithTimeout(context.Background(), listenTimeout)
			defer cancel()
			if err := l.Subscribe(listenCtx, channel); err != nil {
				b.Unsubscribe(sub)
				return nil, err
			}
		}
	}

	if err := b.catchup(ctx, sub, sinceID); err != nil {
		slog.Warn("Event catchup failed", "channel", channel, "error", err)
	}
	return sub, nil
}

// Unsubscribe removes a consumer and stops LISTEN on its channel when
// it was the last one.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	lastOnChannel := false
	if group, ok := b.subs[sub.Channel]; ok {
		delete(group, sub.ID)
		if len(group) == 0 {
			delete(b.subs, sub.Channel)
			lastOnChannel = true
		}
	}
	b.mu.Unlock()

	sub.mu.Lock()
	if !sub.closed {
		sub.closed = true
		close(sub.C)
	}
	sub.mu.Unlock()

	if lastOnChannel {
		b.listenerMu.RLock()
		l := b.listener
		b.listenerMu.RUnlock()
		if l != nil {
			channel := sub.Channel
			go func() {
				// Re-check: a rapid resubscribe must keep the LISTEN alive.
				b.mu.RLock()
				_, resubscribed := b.subs[channel]
				b.mu.RUnlock()
				if resubscribed {
					return
				}
				if err := l.Unsubscribe(context.Background(), channel); err != nil {
					slog.Error("UNLISTEN failed", "channel", channel, "error", err)
				}
			}()
		}
	}
}

// Broadcast delivers one payload to every subscriber of the channel.
// Full buffers drop the event and bump the subscriber's drop counter.
func (b *Broker) Broadcast(channel string, payload []byte) {
	b.mu.RLock()
	group := make([]*Subscription, 0, len(b.subs[channel]))
	for _, sub := range b.subs[channel] {
		group = append(group, sub)
	}
	b.mu.RUnlock()

	for _, sub := range group {
		b.deliver(sub, payload)
	}
}

// deliver sends without blocking. pipeline_complete gets the
// subscriber's running drop count stamped in before delivery.
func (b *Broker) deliver(sub *Subscription, payload []byte) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}

	out := payload
	if sub.dropped > 0 && isPipelineComplete(payload) {
		if stamped, err := stampDropped(payload, sub.dropped); err == nil {
			out = stamped
		}
	}

	select {
	case sub.C <- out:
	default:
		sub.dropped++
		slog.Warn("Subscriber buffer full, dropping event",
			"channel", sub.Channel, "dropped_total", sub.dropped)
	}
}

// ActiveSubscribers returns the count across all channels.
func (b *Broker) ActiveSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, group := range b.subs {
		n += len(group)
	}
	return n
}

func (b *Broker) catchup(ctx context.Context, sub *Subscription, sinceID int64) error {
	if b.querier == nil {
		return nil
	}
	rows, err := b.querier.EventsSince(ctx, sub.Channel, sinceID, catchupLimit)
	if err != nil {
		return err
	}
	for _, row := range rows {
		row.Payload["db_event_id"] = row.ID
		payload, err := json.Marshal(row.Payload)
		if err != nil {
			continue
		}
		b.deliver(sub, payload)
	}
	return nil
}

func isPipelineComplete(payload []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Type == KindPipelineComplete
}

func stampDropped(payload []byte, dropped int) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	m["events_dropped"] = dropped
	return json.Marshal(m)
}
