package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixConfig configures the Matrix channel.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
}

// MatrixChannel answers customers in Matrix rooms. It auto-joins on invite,
// so support staff can pull the bot into a room with a customer.
type MatrixChannel struct {
	client  *mautrix.Client
	userID  id.UserID
	respond Responder
	stopCh  chan struct{}
}

// NewMatrix builds the channel. respond is called for every m.text message
// not sent by the bot itself.
func NewMatrix(cfg MatrixConfig, respond Responder) (*MatrixChannel, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	return &MatrixChannel{
		client:  client,
		userID:  id.UserID(cfg.UserID),
		respond: respond,
		stopCh:  make(chan struct{}),
	}, nil
}

func (c *MatrixChannel) Name() string { return "matrix" }

// Start registers the event handlers and launches the sync loop. The loop
// reconnects with exponential backoff; a transient homeserver error must not
// leave the bot deaf.
func (c *MatrixChannel) Start(ctx context.Context) error {
	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleInvite)

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			backoff = backoffMin
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				slog.Error("matrix sync stopped, reconnecting", "error", err, "backoff", backoff)
				select {
				case <-c.stopCh:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > backoffMax {
					backoff = backoffMax
				}
				continue
			}
			// Sync returns nil only after a clean StopSync.
			return
		}
	}()

	slog.Info("matrix channel started", "user_id", c.userID)
	return nil
}

// Stop shuts down the sync loop.
func (c *MatrixChannel) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// handleMessage answers one room message.
func (c *MatrixChannel) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.userID {
		return
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return
	}

	sessionID := SessionID("matrix", evt.RoomID.String(), evt.Sender.String())
	reply := c.respond(ctx, sessionID, content.Body, evt.Sender.String())
	if reply == "" {
		return
	}
	if _, err := c.client.SendText(ctx, evt.RoomID, reply); err != nil {
		slog.Warn("failed to send matrix reply", "room", evt.RoomID, "error", err)
	}
}

// handleInvite joins rooms the bot is invited to.
func (c *MatrixChannel) handleInvite(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if id.UserID(evt.GetStateKey()) != c.userID {
		return
	}
	if _, err := c.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		// MForbidden means already joined or access revoked; either way
		// there is nothing to retry.
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("matrix join refused", "room", evt.RoomID)
			return
		}
		slog.Warn("failed to join matrix room", "room", evt.RoomID, "error", err)
		return
	}
	slog.Info("joined matrix room on invite", "room", evt.RoomID)
}
