package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/websocket"
)

// DefaultChannel is the redis channel used to fan notifications out to every
// server instance.
const DefaultChannel = "clinicdesk:notifications"

// Pusher delivers a persisted notification to the recipient's live sessions.
type Pusher interface {
	Push(ctx context.Context, n *Notification) error
}

// Broadcaster is the part of the websocket hub the pushers need.
type Broadcaster interface {
	Broadcast(topic string, event websocket.Event)
}

func toEvent(n *Notification) (websocket.Event, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return websocket.Event{}, fmt.Errorf("marshal notification: %w", err)
	}
	return websocket.Event{
		Type:      "notification",
		Kind:      string(n.RelatedKind),
		ID:        n.RelatedID.String(),
		Timestamp: n.CreatedAt,
		Data:      data,
	}, nil
}

// HubPusher pushes to clients connected to this instance only.
type HubPusher struct {
	hub Broadcaster
}

func NewHubPusher(hub Broadcaster) *HubPusher {
	return &HubPusher{hub: hub}
}

func (p *HubPusher) Push(_ context.Context, n *Notification) error {
	ev, err := toEvent(n)
	if err != nil {
		return err
	}
	p.hub.Broadcast(websocket.UserTopic(n.UserRef), ev)
	return nil
}

// RedisPusher publishes notifications on a redis channel. Every instance,
// this one included, runs a Relay that forwards them to its local hub.
type RedisPusher struct {
	client  *redis.Client
	channel string
}

func NewRedisPusher(client *redis.Client, channel string) *RedisPusher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPusher{client: client, channel: channel}
}

func (p *RedisPusher) Push(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Relay subscribes to the notification channel and broadcasts every message
// to the local hub.
type Relay struct {
	client  *redis.Client
	channel string
	hub     Broadcaster
	logger  zerolog.Logger
	ready   chan struct{}
}

func NewRelay(client *redis.Client, channel string, hub Broadcaster, logger zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Relay{client: client, channel: channel, hub: hub, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the subscription is confirmed by redis.
func (r *Relay) Ready() <-chan struct{} { return r.ready }

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info().Str("channel", r.channel).Msg("notification relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				r.logger.Warn().Err(err).Msg("relay: malformed notification payload")
				continue
			}
			ev, err := toEvent(&n)
			if err != nil {
				r.logger.Warn().Err(err).Msg("relay: encode event")
				continue
			}
			r.hub.Broadcast(websocket.UserTopic(n.UserRef), ev)
		}
	}
}
