package concord

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"pkg.mon.icu/concord/internal/gateway"
	"pkg.mon.icu/concord/internal/rest"
	"pkg.mon.icu/concord/model"
)

// Commands. All of these are safe to call from any goroutine: the work is
// posted to the owner context and the REST leg runs asynchronously, with
// outcomes surfaced as domain events.

// SendMessage sends content to a channel, optionally as a reply. A
// locally synthesized echo is inserted into the cache immediately and
// reconciled (or marked failed) later; the returned id is the echo's.
func (c *Client) SendMessage(channelID model.Snowflake, content string, replyTo model.Snowflake) model.Snowflake {
	nonce := uuid.NewString()
	localID := model.NewSnowflake(time.Now())

	c.loop.Post(func() {
		m := &model.Message{
			ID:        localID,
			ChannelID: channelID,
			Content:   content,
			Nonce:     nonce,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Pending:   true,
		}
		if self, ok := c.store.User(c.selfID); ok {
			m.Author = self
		}
		if ch, ok := c.store.Channel(channelID); ok {
			m.GuildID = ch.GuildID
		}
		if replyTo.IsValid() {
			m.Reference = &model.MessageReference{MessageID: replyTo, ChannelID: channelID}
		}

		c.store.Begin()
		c.store.AddPendingNonce(nonce, localID)
		c.storeMessage(m)
		c.emit(&MessageCreatedEvent{Message: m})
		c.store.End()

		p := rest.CreateMessageParams{Content: content, Nonce: nonce, Reference: m.Reference}
		c.rest.CreateMessage(c.ctx, channelID, p, func(msg *model.Message, err error) {
			if err != nil {
				c.failPending(nonce, channelID, err)
				return
			}
			// The gateway echo usually wins the race; whichever side
			// matches the nonce first performs the swap.
			if _, ok := c.store.TakePendingNonce(nonce); ok {
				c.store.Begin()
				c.store.RemoveMessage(localID)
				c.storeMessage(msg)
				c.emit(&MessageUpdatedEvent{Message: msg})
				c.store.End()
			}
		})
	})
	return localID
}

// failPending marks the optimistic echo failed. A rate-limit rejection
// carries the server's retry delay so the UI can offer a retry.
func (c *Client) failPending(nonce string, channelID model.Snowflake, err error) {
	localID, ok := c.store.TakePendingNonce(nonce)
	if !ok {
		return
	}
	if m, ok := c.store.Message(localID); ok {
		m.Pending = false
		m.Failed = true
	}

	var retryAfter time.Duration
	var rl *rest.RateLimitError
	if errors.As(err, &rl) {
		retryAfter = rl.RetryAfter
	}
	c.logger.Sugar().Warnf("Message send failed: %s.", err)
	c.emit(&MessageSendFailedEvent{LocalID: localID, ChannelID: channelID, RetryAfter: retryAfter})
}

// EditMessage replaces a message's content.
func (c *Client) EditMessage(messageID model.Snowflake, content string) {
	c.loop.Post(func() {
		m, ok := c.store.Message(messageID)
		if !ok {
			return
		}
		c.rest.EditMessage(c.ctx, m.ChannelID, messageID, content, func(msg *model.Message, err error) {
			if err != nil {
				c.logger.Sugar().Warnf("Message edit failed: %s.", err)
			}
		})
	})
}

// DeleteMessage removes a message server-side; the cache tombstone is
// applied when MESSAGE_DELETE echoes back.
func (c *Client) DeleteMessage(messageID model.Snowflake) {
	c.loop.Post(func() {
		m, ok := c.store.Message(messageID)
		if !ok {
			return
		}
		c.rest.DeleteMessage(c.ctx, m.ChannelID, messageID, nil)
	})
}

func (c *Client) AddReaction(messageID model.Snowflake, emoji string) {
	c.loop.Post(func() {
		if m, ok := c.store.Message(messageID); ok {
			c.rest.AddReaction(c.ctx, m.ChannelID, messageID, emoji, nil)
		}
	})
}

func (c *Client) RemoveReaction(messageID model.Snowflake, emoji string) {
	c.loop.Post(func() {
		if m, ok := c.store.Message(messageID); ok {
			c.rest.RemoveReaction(c.ctx, m.ChannelID, messageID, emoji, nil)
		}
	})
}

// FetchMessagesBefore pages channel history backwards from beforeID
// (pass an invalid id for the newest page). Results land in the cache
// and are announced with a FetchedMessagesEvent.
func (c *Client) FetchMessagesBefore(channelID, beforeID model.Snowflake, limit int) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	c.loop.Post(func() {
		c.rest.Messages(c.ctx, channelID, beforeID, limit, func(ms []*model.Message, err error) {
			if err != nil {
				c.logger.Sugar().Warnf("Message history fetch failed: %s.", err)
				return
			}
			c.store.Begin()
			for _, m := range ms {
				c.storeMessage(m)
			}
			c.emit(&FetchedMessagesEvent{ChannelID: channelID, Messages: ms})
			c.store.End()
		})
	})
}

// FetchPinnedMessages loads a channel's pinned set into the cache.
func (c *Client) FetchPinnedMessages(channelID model.Snowflake) {
	c.loop.Post(func() {
		c.rest.PinnedMessages(c.ctx, channelID, func(ms []*model.Message, err error) {
			if err != nil {
				c.logger.Sugar().Warnf("Pinned messages fetch failed: %s.", err)
				return
			}
			c.store.Begin()
			for _, m := range ms {
				c.storeMessage(m)
			}
			c.emit(&FetchedPinsEvent{ChannelID: channelID, Messages: ms})
			c.store.End()
		})
	})
}

// CreateDM opens (or reuses) a direct-message channel with the user.
func (c *Client) CreateDM(recipientID model.Snowflake) {
	c.loop.Post(func() {
		c.rest.CreateDM(c.ctx, recipientID, func(ch *model.Channel, err error) {
			if err != nil {
				c.logger.Sugar().Warnf("DM creation failed: %s.", err)
				return
			}
			c.store.PutChannel(ch)
			c.emit(&ChannelCreatedEvent{Channel: ch})
		})
	})
}

// JoinGuild accepts a guild invite by code.
func (c *Client) JoinGuild(inviteCode string) {
	c.rest.JoinGuild(c.ctx, inviteCode, nil)
}

func (c *Client) LeaveGuild(guildID model.Snowflake) {
	c.rest.LeaveGuild(c.ctx, guildID, nil)
}

func (c *Client) KickMember(guildID, userID model.Snowflake) {
	c.rest.KickMember(c.ctx, guildID, userID, nil)
}

func (c *Client) BanMember(guildID, userID model.Snowflake, reason string) {
	c.rest.BanMember(c.ctx, guildID, userID, reason, nil)
}

func (c *Client) UnbanMember(guildID, userID model.Snowflake) {
	c.rest.UnbanMember(c.ctx, guildID, userID, nil)
}

func (c *Client) MuteGuild(guildID model.Snowflake, muted bool) {
	c.rest.SetGuildMuted(c.ctx, guildID, muted, nil)
}

func (c *Client) MuteChannel(guildID, channelID model.Snowflake, muted bool) {
	c.rest.SetChannelMuted(c.ctx, guildID, channelID, muted, nil)
}

// RoleEdit selects the role fields to change; nil fields keep their
// current value.
type RoleEdit struct {
	Name        *string
	Color       *int
	Permissions *model.Permissions
	Position    *int
}

// ModifyRole patches a role; the authoritative state arrives back via
// GUILD_ROLE_UPDATE.
func (c *Client) ModifyRole(guildID, roleID model.Snowflake, edit RoleEdit) {
	p := rest.ModifyRoleParams{
		Name:        edit.Name,
		Color:       edit.Color,
		Permissions: edit.Permissions,
		Position:    edit.Position,
	}
	c.rest.ModifyRole(c.ctx, guildID, roleID, p, func(r *model.Role, err error) {
		if err != nil {
			c.logger.Sugar().Warnf("Role modification failed: %s.", err)
			return
		}
		r.GuildID = guildID
		c.store.PutRole(r)
		c.emit(&RoleUpdatedEvent{Role: r})
	})
}

// SetThreadArchived archives or unarchives a thread.
func (c *Client) SetThreadArchived(threadID model.Snowflake, archived bool) {
	c.rest.SetThreadArchived(c.ctx, threadID, archived, func(ch *model.Channel, err error) {
		if err != nil {
			c.logger.Sugar().Warnf("Thread archival change failed: %s.", err)
			return
		}
		c.store.PutChannel(ch)
		c.emit(&ThreadUpdatedEvent{Thread: ch})
	})
}

// SetPresence updates the connection's presence status.
func (c *Client) SetPresence(status string) {
	if err := c.gw.UpdatePresence(gateway.Presence{Status: status}); err != nil {
		c.logger.Sugar().Warnf("Presence update failed: %s.", err)
	}
}
