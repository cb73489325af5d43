package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"supportdesk/internal/utils"
)

const livenessChannel = "supportdesk:liveness"

type EventType string

const (
	EventTyping       EventType = "typing"
	EventPresence     EventType = "presence"
	EventWidgetClosed EventType = "widget_closed"
	EventMessage      EventType = "message"
)

// LivenessEvent is the cross-server fan-out unit. Servers republish what
// they observe locally so admin consoles connected elsewhere converge.
type LivenessEvent struct {
	ServerID  string    `json:"server_id"`
	Type      EventType `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	Role      string    `json:"role,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

// PubSubService carries liveness events between server instances over Redis
// Pub/Sub. Events from this server are filtered out on receipt.
type PubSubService struct {
	rdb      *redis.Client
	serverID string
}

func NewPubSubService(rdb *redis.Client) *PubSubService {
	return &PubSubService{
		rdb:      rdb,
		serverID: uuid.New().String(),
	}
}

func (p *PubSubService) ServerID() string {
	return p.serverID
}

func (p *PubSubService) Publish(ctx context.Context, event *LivenessEvent) error {
	event.ServerID = p.serverID
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal liveness event: %w", err)
	}
	return p.rdb.Publish(ctx, livenessChannel, data).Err()
}

// Subscribe delivers remote events to the handler until ctx is cancelled.
// Runs its own goroutine; malformed or locally-originated messages are
// dropped.
func (p *PubSubService) Subscribe(ctx context.Context, handler func(*LivenessEvent)) {
	sub := p.rdb.Subscribe(ctx, livenessChannel)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event LivenessEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					utils.LogWarn(ctx, "dropping malformed liveness event")
					continue
				}
				if event.ServerID == p.serverID {
					continue
				}
				handler(&event)
			}
		}
	}()
}
