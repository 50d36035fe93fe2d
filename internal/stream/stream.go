// Package stream implements the StreamSource external collaborator (§6): a
// WebSocket client that subscribes to new-mint, migration, and trade events
// and emits a uniform Event to the Ingestor. Client-side counterpart of the
// gorilla/websocket server hub pattern used elsewhere in the pack.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType enumerates the server->client message kinds (§6).
type EventType string

const (
	EventCreate    EventType = "create"
	EventBuy       EventType = "buy"
	EventSell      EventType = "sell"
	EventMigration EventType = "migration"
)

// Event is the normalised push event handed to the Ingestor.
type Event struct {
	Type            EventType
	Mint            string
	TraderPublicKey string
	Name            string
	Symbol          string
}

// wireMessage mirrors the server->client JSON shape (§6).
type wireMessage struct {
	TxType          string `json:"txType"`
	Mint            string `json:"mint"`
	TraderPublicKey string `json:"traderPublicKey"`
	Name            string `json:"name"`
	Symbol          string `json:"symbol"`
}

type subscribeMessage struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys,omitempty"`
}

// Source is the StreamSource collaborator (§6).
type Source interface {
	// Run connects, subscribes, and delivers events to onEvent until ctx is
	// cancelled, reconnecting with jittered backoff on any disconnect.
	Run(ctx context.Context, onEvent func(Event)) error
	// SubscribeTokenTrade adds mints to the live per-token trade subscription
	// (§6 subscribeTokenTrade), called as the tracked-token set drifts.
	SubscribeTokenTrade(keys []string) error
	// SubscribeAccountTrade adds wallets to the live per-wallet subscription
	// (§6 subscribeAccountTrade), called as the smart-wallet set drifts.
	SubscribeAccountTrade(keys []string) error
}

// WebSocketSource is a gorilla/websocket implementation of Source.
type WebSocketSource struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn
}

// New builds a WebSocketSource pointed at a pump.fun-style event feed.
func New(url string) *WebSocketSource {
	return &WebSocketSource{url: url}
}

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Run implements Source. Reconnects with full-jitter exponential backoff;
// each new connection re-sends only the new-token and migration
// subscriptions. Token-trade and account-trade subscriptions sent on an
// earlier connection are not re-sent.
func (s *WebSocketSource) Run(ctx context.Context, onEvent func(Event)) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runOnce(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			jittered := time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = minBackoff
	}
}

func (s *WebSocketSource) runOnce(ctx context.Context, onEvent func(Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("stream: dial: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for _, sub := range []subscribeMessage{{Method: "subscribeNewToken"}, {Method: "subscribeMigration"}} {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("stream: subscribe %s: %w", sub.Method, err)
		}
	}

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}
		onEvent(Event{
			Type:            EventType(msg.TxType),
			Mint:            msg.Mint,
			TraderPublicKey: msg.TraderPublicKey,
			Name:            msg.Name,
			Symbol:          msg.Symbol,
		})
	}
}

// SubscribeTokenTrade implements Source.
func (s *WebSocketSource) SubscribeTokenTrade(keys []string) error {
	return s.send(subscribeMessage{Method: "subscribeTokenTrade", Keys: keys})
}

// SubscribeAccountTrade implements Source.
func (s *WebSocketSource) SubscribeAccountTrade(keys []string) error {
	return s.send(subscribeMessage{Method: "subscribeAccountTrade", Keys: keys})
}

func (s *WebSocketSource) send(msg subscribeMessage) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream: not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("stream: marshal subscribe: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
