// Package channels connects the dialogue engine to live chat surfaces.
// Each Channel adapts one transport (Matrix, Discord) and funnels inbound
// messages into a shared Responder; the Manager owns their lifecycle.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Responder handles one inbound chat message and returns the reply to post
// back, or "" to stay silent. sessionID is stable per conversation+sender so
// the engine keeps separate dialogue state per person per room.
type Responder func(ctx context.Context, sessionID, text, senderName string) string

// Channel is one chat transport. Start must not block; Stop tears the
// connection down and may be called once.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// SessionID builds the engine session key for one sender in one
// conversation.
func SessionID(channel, conversation, sender string) string {
	return channel + ":" + conversation + ":" + sender
}

// Manager starts and stops the configured channel set as a unit.
type Manager struct {
	mu       sync.Mutex
	channels []Channel
	started  []Channel
}

// NewManager builds a manager over the given channels. An empty set is
// valid; StartAll is then a no-op.
func NewManager(channels ...Channel) *Manager {
	return &Manager{channels: channels}
}

// Names lists the managed channel names.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.channels))
	for _, c := range m.channels {
		names = append(names, c.Name())
	}
	return names
}

// StartAll starts every channel. On any failure the already-started
// channels are stopped again and the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.channels) == 0 {
		slog.Info("no chat channels configured")
		return nil
	}

	for _, c := range m.channels {
		slog.Info("starting channel", "channel", c.Name())
		if err := c.Start(ctx); err != nil {
			for _, s := range m.started {
				s.Stop()
			}
			m.started = nil
			return fmt.Errorf("failed to start channel %s: %w", c.Name(), err)
		}
		m.started = append(m.started, c)
	}
	slog.Info("channels started", "count", len(m.started))
	return nil
}

// StopAll stops every started channel.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.started {
		slog.Info("stopping channel", "channel", c.Name())
		c.Stop()
	}
	m.started = nil
}
