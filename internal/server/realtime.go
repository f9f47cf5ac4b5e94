package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventDeckChanged = "deck-changed"
	realtimeEventReady       = "ready"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "pokedeck"
	defaultHeartbeatInterval = 25 * time.Second
)

// RealtimeMessage announces a deck mutation to every view of an account.
type RealtimeMessage struct {
	AccountKey string
	EventType  string
	ViewID     string
	Kind       deck.ChangeKind
	Category   cards.Category
	CardID     int
	DeckCount  int
	Score      float64
	Timestamp  time.Time
}

type realtimeEventPayload struct {
	ViewID    string  `json:"viewId"`
	Kind      string  `json:"kind"`
	Category  string  `json:"category,omitempty"`
	CardID    int     `json:"cardId,omitempty"`
	DeckCount int     `json:"deckCount"`
	Score     float64 `json:"score"`
	Timestamp int64   `json:"timestamp"`
}

type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, accountKey string) (<-chan RealtimeMessage, func()) {
	if accountKey == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(accountKey, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(accountKey, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to current subscribers of its account. Slow
// subscribers with a full buffer miss the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.AccountKey == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.AccountKey]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(accountKey string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[accountKey]; !ok {
		d.subscribers[accountKey] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[accountKey][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(accountKey string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[accountKey]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, accountKey)
		}
	}
	d.mu.Unlock()
}

// changeListener adapts controller changes of one view into realtime messages.
func changeListener(dispatcher *RealtimeDispatcher, clock func() time.Time, viewID, accountKey string) deck.ChangeListener {
	return func(change deck.Change) {
		dispatcher.Publish(RealtimeMessage{
			AccountKey: accountKey,
			EventType:  RealtimeEventDeckChanged,
			ViewID:     viewID,
			Kind:       change.Kind,
			Category:   change.Category,
			CardID:     change.CardID,
			DeckCount:  change.View.Deck.Count(),
			Score:      change.View.Score.Score,
			Timestamp:  clock().UTC(),
		})
	}
}

func (h *httpHandler) handleViewEvents(c *gin.Context) {
	view, ok := h.lookupView(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, view.accountKey)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent(realtimeEventReady, gin.H{"viewId": view.id, "source": realtimeSourceBackend})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, open := <-stream:
			if !open {
				return
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				ViewID:    message.ViewID,
				Kind:      string(message.Kind),
				Category:  message.Category.String(),
				CardID:    message.CardID,
				DeckCount: message.DeckCount,
				Score:     message.Score,
				Timestamp: message.Timestamp.Unix(),
			})
			c.Writer.Flush()
		case tick := <-heartbeat.C:
			if !h.views.touch(view.id, view.accountKey) {
				return
			}
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": tick.UTC().Unix()})
			c.Writer.Flush()
		}
	}
}
