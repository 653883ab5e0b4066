// Package chat bridges the estimation workflow to chat platforms (Slack, Discord).
package chat

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message and returns a reference to it so
	// the caller can edit it later.
	Send(ctx context.Context, msg OutboundMessage) (MessageRef, error)

	// Update replaces the text of a previously sent message.
	Update(ctx context.Context, ref MessageRef, text string) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "slack", "discord"
	ChannelID string    // platform-specific channel identifier
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string // target channel (adapter default when empty)
	Text      string // message text (platform-native formatting)
}

// MessageRef identifies a sent message for later edits.
type MessageRef struct {
	ChannelID string
	ID        string // platform message ID (Slack timestamp, Discord snowflake)
}
