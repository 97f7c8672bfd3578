package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback stands in for Redis: published events are delivered to every subscriber of the menu.
type loopback struct {
	mu         sync.Mutex
	handlers   map[uuid.UUID][]func(string, []byte)
	published  int
	cancelled  int
	publishErr error
}

func newLoopback() *loopback {
	return &loopback{handlers: make(map[uuid.UUID][]func(string, []byte))}
}

func (l *loopback) PublishMenuEvent(menuID uuid.UUID, event string, payload []byte) error {
	l.mu.Lock()
	if l.publishErr != nil {
		l.mu.Unlock()
		return l.publishErr
	}
	l.published++
	hs := append([]func(string, []byte){}, l.handlers[menuID]...)
	l.mu.Unlock()
	for _, h := range hs {
		h(event, payload)
	}
	return nil
}

func (l *loopback) SubscribeMenu(menuID uuid.UUID, handler func(string, []byte)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[menuID] = append(l.handlers[menuID], handler)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.cancelled++
		delete(l.handlers, menuID)
	}, nil
}

func next(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.Messages():
		return msg
	default:
		t.Fatalf("no message queued for %s", c.ID)
		return WSMessage{}
	}
}

func TestHub_BroadcastOnlyReachesMenuViewers(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	menuA, menuB := uuid.New(), uuid.New()
	a1, a2, b := NewClient(hub, menuA), NewClient(hub, menuA), NewClient(hub, menuB)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b)
	assert.Equal(t, 2, hub.ViewerCount(menuA))

	hub.Publish(menuA, EventMenuUpdated, map[string]string{"menu_id": menuA.String()})

	for _, c := range []*Client{a1, a2} {
		msg := next(t, c)
		assert.Equal(t, EventMenuUpdated, msg.Event)
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, menuA.String(), data["menu_id"])
	}
	assert.Empty(t, b.Messages())
}

func TestHub_UnregisterClosesQueue(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	menuID := uuid.New()
	c := NewClient(hub, menuID)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	_, open := <-c.Messages()
	assert.False(t, open)
	assert.Equal(t, 0, hub.ViewerCount(menuID))
	hub.Broadcast(menuID, EventMenuUpdated, nil)
}

func TestHub_PublishGoesThroughRedisOnce(t *testing.T) {
	bus := newLoopback()
	hub := NewHub(nil, bus, bus)
	menuID := uuid.New()
	c := NewClient(hub, menuID)
	hub.Register(c)

	hub.Publish(menuID, EventMenuUpdated, map[string]string{"menu_id": menuID.String()})
	assert.Equal(t, 1, bus.published)
	assert.Equal(t, EventMenuUpdated, next(t, c).Event)
	assert.Empty(t, c.Messages())

	hub.Unregister(c)
	assert.Equal(t, 1, bus.cancelled)
}

func TestHub_PublishFallsBackToLocal(t *testing.T) {
	bus := newLoopback()
	bus.publishErr = errors.New("redis down")
	hub := NewHub(nil, bus, bus)
	menuID := uuid.New()
	c := NewClient(hub, menuID)
	hub.Register(c)

	hub.Publish(menuID, EventMenuUpdated, map[string]string{"menu_id": menuID.String()})
	assert.Equal(t, EventMenuUpdated, next(t, c).Event)
}

func TestHub_SlowViewerIsSkipped(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	menuID := uuid.New()
	c := NewClient(hub, menuID)
	hub.Register(c)
	for i := 0; i < cap(c.send)+10; i++ {
		hub.Broadcast(menuID, EventMenuUpdated, nil)
	}
	assert.Len(t, c.send, cap(c.send))
}

// flakySub fails the first failures subscribe calls, then delegates to the loopback.
type flakySub struct {
	*loopback
	failures int
	attempts int
}

func (f *flakySub) SubscribeMenu(menuID uuid.UUID, handler func(string, []byte)) (func(), error) {
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.New("redis unavailable")
	}
	return f.loopback.SubscribeMenu(menuID, handler)
}

func TestHub_SubscriptionRetriedAfterFailure(t *testing.T) {
	bus := newLoopback()
	sub := &flakySub{loopback: bus, failures: 1}
	hub := NewHub(nil, bus, sub)
	menuID := uuid.New()
	a, b := NewClient(hub, menuID), NewClient(hub, menuID)

	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, sub.attempts)

	hub.Publish(menuID, EventMenuUpdated, map[string]string{"menu_id": menuID.String()})
	for _, c := range []*Client{a, b} {
		assert.Equal(t, EventMenuUpdated, next(t, c).Event)
		assert.Empty(t, c.Messages())
	}

	hub.Unregister(a)
	hub.Unregister(b)
	assert.Equal(t, 1, bus.cancelled)
}

func TestHub_UnsubscribedMenuStillReceivesLocalPublish(t *testing.T) {
	bus := newLoopback()
	sub := &flakySub{loopback: bus, failures: 1}
	hub := NewHub(nil, bus, sub)
	menuID := uuid.New()
	c := NewClient(hub, menuID)
	hub.Register(c)

	hub.Publish(menuID, EventMenuUpdated, nil)
	assert.Equal(t, 1, bus.published)
	assert.Equal(t, EventMenuUpdated, next(t, c).Event)
	assert.Empty(t, c.Messages())
}
