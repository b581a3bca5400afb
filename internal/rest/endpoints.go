package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pkg.mon.icu/concord/model"
)

// CreateMessageParams is the body of a message send.
type CreateMessageParams struct {
	Content   string                  `json:"content"`
	Nonce     string                  `json:"nonce,omitempty"`
	Reference *model.MessageReference `json:"message_reference,omitempty"`
}

// ModifyRoleParams patches a role; nil fields are left untouched.
type ModifyRoleParams struct {
	Name        *string            `json:"name,omitempty"`
	Color       *int               `json:"color,omitempty"`
	Permissions *model.Permissions `json:"permissions,omitempty"`
	Position    *int               `json:"position,omitempty"`
}

// GuildSettingsParams patches per-guild client settings.
type GuildSettingsParams struct {
	Muted bool `json:"muted"`
}

// ChannelSettingsParams patches per-channel client settings inside a
// guild settings payload.
type ChannelSettingsParams struct {
	ChannelOverrides map[string]struct {
		Muted bool `json:"muted"`
	} `json:"channel_overrides"`
}

// ModifyChannelParams patches a channel; used for thread archival.
type ModifyChannelParams struct {
	Archived *bool `json:"archived,omitempty"`
}

func (c *Client) CreateMessage(ctx context.Context, channelID model.Snowflake, p CreateMessageParams, cb func(*model.Message, error)) {
	go func() {
		m := &model.Message{}
		err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), p, m)
		if err != nil {
			m = nil
		}
		c.deliver(wrap1(cb, m, err))
	}()
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID model.Snowflake, content string, cb func(*model.Message, error)) {
	go func() {
		m := &model.Message{}
		body := struct {
			Content string `json:"content"`
		}{content}
		err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), body, m)
		if err != nil {
			m = nil
		}
		c.deliver(wrap1(cb, m, err))
	}()
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID model.Snowflake, cb func(error)) {
	c.fireAndForget(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID), nil, cb)
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID model.Snowflake, emoji string, cb func(error)) {
	c.fireAndForget(ctx, http.MethodPut, reactionPath(channelID, messageID, emoji), nil, cb)
}

func (c *Client) RemoveReaction(ctx context.Context, channelID, messageID model.Snowflake, emoji string, cb func(error)) {
	c.fireAndForget(ctx, http.MethodDelete, reactionPath(channelID, messageID, emoji), nil, cb)
}

func reactionPath(channelID, messageID model.Snowflake, emoji string) string {
	return fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me", channelID, messageID, url.PathEscape(emoji))
}

// Messages fetches up to limit messages strictly before beforeID, newest
// first, which is how history paging walks backwards.
func (c *Client) Messages(ctx context.Context, channelID, beforeID model.Snowflake, limit int, cb func([]*model.Message, error)) {
	go func() {
		path := fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit)
		if beforeID.IsValid() {
			path += "&before=" + beforeID.String()
		}
		var ms []*model.Message
		err := c.do(ctx, http.MethodGet, path, nil, &ms)
		c.deliver(wrap1(cb, ms, err))
	}()
}

func (c *Client) PinnedMessages(ctx context.Context, channelID model.Snowflake, cb func([]*model.Message, error)) {
	go func() {
		var ms []*model.Message
		err := c.do(ctx, http.MethodGet, fmt.Sprintf("/channels/%s/pins", channelID), nil, &ms)
		c.deliver(wrap1(cb, ms, err))
	}()
}

func (c *Client) CreateDM(ctx context.Context, recipientID model.Snowflake, cb func(*model.Channel, error)) {
	go func() {
		ch := &model.Channel{}
		body := struct {
			RecipientID model.Snowflake `json:"recipient_id"`
		}{recipientID}
		err := c.do(ctx, http.MethodPost, "/users/@me/channels", body, ch)
		if err != nil {
			ch = nil
		}
		c.deliver(wrap1(cb, ch, err))
	}()
}

// JoinGuild accepts an invite by code.
func (c *Client) JoinGuild(ctx context.Context, inviteCode string, cb func(error)) {
	c.fireAndForget(ctx, http.MethodPost, "/invites/"+url.PathEscape(inviteCode), struct{}{}, cb)
}

func (c *Client) LeaveGuild(ctx context.Context, guildID model.Snowflake, cb func(error)) {
	c.fireAndForget(ctx, http.MethodDelete, "/users/@me/guilds/"+guildID.String(), nil, cb)
}

func (c *Client) KickMember(ctx context.Context, guildID, userID model.Snowflake, cb func(error)) {
	c.fireAndForget(ctx, http.MethodDelete, fmt.Sprintf("/guilds/%s/members/%s", guildID, userID), nil, cb)
}

func (c *Client) BanMember(ctx context.Context, guildID, userID model.Snowflake, reason string, cb func(error)) {
	body := struct {
		Reason string `json:"reason,omitempty"`
	}{reason}
	c.fireAndForget(ctx, http.MethodPut, fmt.Sprintf("/guilds/%s/bans/%s", guildID, userID), body, cb)
}

func (c *Client) UnbanMember(ctx context.Context, guildID, userID model.Snowflake, cb func(error)) {
	c.fireAndForget(ctx, http.MethodDelete, fmt.Sprintf("/guilds/%s/bans/%s", guildID, userID), nil, cb)
}

func (c *Client) ModifyRole(ctx context.Context, guildID, roleID model.Snowflake, p ModifyRoleParams, cb func(*model.Role, error)) {
	go func() {
		r := &model.Role{}
		err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/guilds/%s/roles/%s", guildID, roleID), p, r)
		if err != nil {
			r = nil
		}
		c.deliver(wrap1(cb, r, err))
	}()
}

func (c *Client) SetGuildMuted(ctx context.Context, guildID model.Snowflake, muted bool, cb func(error)) {
	c.fireAndForget(ctx, http.MethodPatch, fmt.Sprintf("/users/@me/guilds/%s/settings", guildID), GuildSettingsParams{Muted: muted}, cb)
}

func (c *Client) SetChannelMuted(ctx context.Context, guildID, channelID model.Snowflake, muted bool, cb func(error)) {
	p := ChannelSettingsParams{}
	p.ChannelOverrides = map[string]struct {
		Muted bool `json:"muted"`
	}{channelID.String(): {Muted: muted}}
	c.fireAndForget(ctx, http.MethodPatch, fmt.Sprintf("/users/@me/guilds/%s/settings", guildID), p, cb)
}

func (c *Client) SetThreadArchived(ctx context.Context, threadID model.Snowflake, archived bool, cb func(*model.Channel, error)) {
	go func() {
		ch := &model.Channel{}
		err := c.do(ctx, http.MethodPatch, "/channels/"+threadID.String(), ModifyChannelParams{Archived: &archived}, ch)
		if err != nil {
			ch = nil
		}
		c.deliver(wrap1(cb, ch, err))
	}()
}

// fireAndForget runs a call whose response body is uninteresting.
func (c *Client) fireAndForget(ctx context.Context, method, path string, body any, cb func(error)) {
	go func() {
		err := c.do(ctx, method, path, body, nil)
		if cb == nil {
			if err != nil {
				c.logger.Sugar().Errorf("REST %s %s failed: %s.", method, path, err)
			}
			return
		}
		c.deliver(func() { cb(err) })
	}()
}

func wrap1[T any](cb func(T, error), v T, err error) func() {
	if cb == nil {
		return nil
	}
	return func() { cb(v, err) }
}
