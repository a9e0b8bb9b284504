package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicSessionLost carries the "authorization permanently lost" signal.
const TopicSessionLost = "auth.session_lost"

// SessionLostEvent is published when a refresh is rejected mid-session
// and the credentials cannot be recovered. Consumers (the Controller,
// navigation) react by signing out and routing to the signed-out entry
// point.
type SessionLostEvent struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// LostAuthBus decouples the Gate from the Controller: the Gate detects
// the unrecoverable failure, the Controller owns the reaction. It is an
// in-process pub/sub, injected at construction, never a global.
type LostAuthBus struct {
	pubsub *gochannel.GoChannel
}

func NewLostAuthBus(logger *slog.Logger) *LostAuthBus {
	if logger == nil {
		logger = slog.Default()
	}

	return &LostAuthBus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 8},
			watermill.NewSlogLogger(logger),
		),
	}
}

// PublishSessionLost broadcasts one lost-session event.
func (b *LostAuthBus) PublishSessionLost(reason string) error {
	payload, err := json.Marshal(SessionLostEvent{
		Reason: reason,
		At:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("authsdk: marshal session lost event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(TopicSessionLost, msg); err != nil {
		return fmt.Errorf("authsdk: publish session lost event: %w", err)
	}

	return nil
}

// Subscribe returns the lost-session message stream. Messages must be
// Acked by the consumer.
func (b *LostAuthBus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicSessionLost)
}

func (b *LostAuthBus) Close() error { return b.pubsub.Close() }
