package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const subscribeTimeout = 2 * time.Second

// Hub fans save-change events out to websocket clients. With Redis configured
// every instance publishes to a per-player channel and delivers what it
// receives from the pattern subscription, so all instances see every change.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	done    chan struct{}
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	PlayerID string
	Send     chan []byte
}

// Event is the payload pushed to a player's stream.
type Event struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
	Data     any    `json:"data,omitempty"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}
	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe failed, stream is local only: %v", err)
		_ = pubsub.Close()
		close(h.done)
		return h
	}

	h.redis = redisClient
	h.pubsub = pubsub
	go h.subscribeRedis()
	return h
}

func (h *Hub) Register(playerID string) *Client {
	client := &Client{
		PlayerID: playerID,
		Send:     make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[playerID] == nil {
		h.clients[playerID] = map[*Client]struct{}{}
	}
	h.clients[playerID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if playerClients, ok := h.clients[client.PlayerID]; ok {
		if _, registered := playerClients[client]; !registered {
			return
		}
		delete(playerClients, client)
		if len(playerClients) == 0 {
			delete(h.clients, client.PlayerID)
		}
		close(client.Send)
	}
}

// Publish encodes the event and broadcasts it to the player's stream.
func (h *Hub) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("stream encode error: %v", err)
		return
	}
	h.Broadcast(ctx, event.PlayerID, payload)
}

// Broadcast delivers payload to the player's clients. When Redis is up the
// message goes through the channel only, and the subscription delivers it.
func (h *Hub) Broadcast(ctx context.Context, playerID string, payload []byte) {
	h.mu.RLock()
	rdb := h.redis
	h.mu.RUnlock()

	if rdb != nil {
		err := rdb.Publish(ctx, redisChannel(playerID), payload).Err()
		if err == nil {
			return
		}
		log.Printf("redis publish error: %v", err)
	}
	h.deliver(playerID, payload)
}

func (h *Hub) deliver(playerID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[playerID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)
	for msg := range h.pubsub.Channel() {
		playerID := playerIDFromChannel(msg.Channel)
		if playerID == "" {
			continue
		}
		h.deliver(playerID, []byte(msg.Payload))
	}
}

// Close stops the Redis subscription. Local delivery keeps working.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	err := h.pubsub.Close()
	<-h.done
	h.mu.Lock()
	h.redis = nil
	h.mu.Unlock()
	return err
}

const (
	channelPrefix  = "saves:"
	channelSuffix  = ":changed"
	channelPattern = channelPrefix + "*" + channelSuffix
)

func redisChannel(playerID string) string {
	return channelPrefix + playerID + channelSuffix
}

func playerIDFromChannel(ch string) string {
	// saves:{player}:changed
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
