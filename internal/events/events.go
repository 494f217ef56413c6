// Package events broadcasts session state changes between client instances
// that share a credential store, and applies changes made elsewhere.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sessionkeeper/internal/clock"
	"sessionkeeper/internal/core"
	"sessionkeeper/internal/idgen"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic carries StateChange messages
const Topic = "session.state"

// StateChange is the payload published on every session transition
type StateChange struct {
	Origin string         `json:"origin"`
	State  core.AuthState `json:"state"`
	At     time.Time      `json:"at"`
}

// Follower applies state changes made by another instance
type Follower interface {
	LogoutLocal(ctx context.Context)
	Reload(ctx context.Context) core.AuthState
}

// Bus publishes this instance's transitions and follows everyone else's
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	origin     string
	clock      clock.Clock
	logger     *slog.Logger
}

// BusOption customizes a Bus
type BusOption func(*Bus)

// WithOrigin sets the instance id stamped on published changes
func WithOrigin(origin string) BusOption {
	return func(b *Bus) { b.origin = origin }
}

// WithClock sets the clock used for timestamps
func WithClock(clk clock.Clock) BusOption {
	return func(b *Bus) { b.clock = clk }
}

// NewBus creates a bus over a watermill publisher and subscriber
func NewBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		publisher:  pub,
		subscriber: sub,
		origin:     idgen.NewInstance(),
		clock:      clock.RealClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.With("component", "events", "origin", b.origin)
	return b
}

// Origin returns the instance id of this bus
func (b *Bus) Origin() string {
	return b.origin
}

// PublishState announces a transition of this instance
func (b *Bus) PublishState(ctx context.Context, state core.AuthState) error {
	payload, err := json.Marshal(StateChange{
		Origin: b.origin,
		State:  state,
		At:     b.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state change: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish state change: %w", err)
	}
	return nil
}

// Follow applies state changes published by other instances until ctx is
// done or the subscription closes. Changes from this instance are skipped.
func (b *Bus) Follow(ctx context.Context, follower Follower) error {
	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}

	b.logger.Info("Following session state changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.handle(ctx, msg, follower)
			msg.Ack()
		}
	}
}

func (b *Bus) handle(ctx context.Context, msg *message.Message, follower Follower) {
	var change StateChange
	if err := json.Unmarshal(msg.Payload, &change); err != nil {
		b.logger.Warn("Dropping malformed state change", "message_uuid", msg.UUID, "error", err)
		return
	}
	if change.Origin == b.origin {
		return
	}

	b.logger.Debug("Remote state change", "from", change.Origin, "state", change.State)
	switch change.State {
	case core.StateUnauthenticated:
		follower.LogoutLocal(ctx)
	case core.StateAuthenticated:
		follower.Reload(ctx)
	}
}

// Close closes the publisher and the subscriber. Closing an already closed
// pub/sub shared with another bus is a no-op.
func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	return b.subscriber.Close()
}
