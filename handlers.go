package concord

import (
	"encoding/json"
	"fmt"
	"time"

	"pkg.mon.icu/concord/internal/state"
	"pkg.mon.icu/concord/model"
)

// dispatchTable is the fixed event-name routing of spec'd application
// events. Handlers run on the owner context and may touch the store
// freely.
func (c *Client) dispatchTable() map[string]func(json.RawMessage) {
	return map[string]func(json.RawMessage){
		"READY":                       c.onReady,
		"RESUMED":                     c.onResumed,
		"GUILD_CREATE":                c.onGuildCreate,
		"GUILD_UPDATE":                c.onGuildUpdate,
		"GUILD_DELETE":                c.onGuildDelete,
		"GUILD_ROLE_CREATE":           c.onGuildRoleCreate,
		"GUILD_ROLE_UPDATE":           c.onGuildRoleUpdate,
		"GUILD_ROLE_DELETE":           c.onGuildRoleDelete,
		"GUILD_MEMBER_ADD":            c.onGuildMemberUpsert,
		"GUILD_MEMBER_UPDATE":         c.onGuildMemberUpsert,
		"GUILD_MEMBER_REMOVE":         c.onGuildMemberRemove,
		"GUILD_MEMBERS_CHUNK":         c.onGuildMembersChunk,
		"GUILD_MEMBER_LIST_UPDATE":    c.onGuildMemberListUpdate,
		"GUILD_BAN_ADD":               c.onGuildBanAdd,
		"GUILD_BAN_REMOVE":            c.onGuildBanRemove,
		"GUILD_EMOJIS_UPDATE":         c.onGuildEmojisUpdate,
		"CHANNEL_CREATE":              c.onChannelCreate,
		"CHANNEL_UPDATE":              c.onChannelUpdate,
		"CHANNEL_DELETE":              c.onChannelDelete,
		"THREAD_CREATE":               c.onThreadCreate,
		"THREAD_UPDATE":               c.onThreadUpdate,
		"THREAD_DELETE":               c.onThreadDelete,
		"THREAD_LIST_SYNC":            c.onThreadListSync,
		"MESSAGE_CREATE":              c.onMessageCreate,
		"MESSAGE_UPDATE":              c.onMessageUpdate,
		"MESSAGE_DELETE":              c.onMessageDelete,
		"MESSAGE_DELETE_BULK":         c.onMessageDeleteBulk,
		"MESSAGE_REACTION_ADD":        c.onMessageReactionAdd,
		"MESSAGE_REACTION_REMOVE":     c.onMessageReactionRemove,
		"MESSAGE_REACTION_REMOVE_ALL": c.onMessageReactionRemoveAll,
		"TYPING_START":                c.onTypingStart,
		"PRESENCE_UPDATE":             c.onPresenceUpdate,
		"USER_UPDATE":                 c.onUserUpdate,
	}
}

// decode unmarshals a dispatch payload, panicking on malformed JSON; the
// dispatcher's recover turns that into a logged, dropped message.
func decode[T any](data json.RawMessage) *T {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		panic(fmt.Errorf("couldn't decode payload: %w", err))
	}
	return v
}

// Session

type readyData struct {
	User            *model.User      `json:"user"`
	Guilds          []*model.Guild   `json:"guilds"`
	PrivateChannels []*model.Channel `json:"private_channels"`
}

func (c *Client) onReady(data json.RawMessage) {
	d := decode[readyData](data)

	c.store.Begin()
	if d.User != nil {
		c.selfID = d.User.ID
		c.store.PutUser(d.User)
	}
	guildIDs := make([]model.Snowflake, 0, len(d.Guilds))
	for _, g := range d.Guilds {
		if !c.inGuildScope(g.ID) {
			continue
		}
		guildIDs = append(guildIDs, g.ID)
		c.ingestGuild(g)
	}
	for _, ch := range d.PrivateChannels {
		c.store.PutChannel(ch)
	}
	c.emit(&ReadyEvent{Self: d.User, GuildIDs: guildIDs})
	c.store.End()

	c.logger.Sugar().Infof("Gateway session is ready (%d guilds).", len(guildIDs))

	// Warm the member cache for explicitly subscribed guilds.
	for _, id := range c.guilds.Values() {
		if err := c.gw.RequestGuildMembers(id.String()); err != nil {
			c.logger.Sugar().Warnf("Couldn't request members for guild %s: %s.", id, err)
		}
	}
}

func (c *Client) onResumed(json.RawMessage) {
	c.logger.Info("Gateway session resumed, replay complete.")
	c.emit(&ResumedEvent{})
}

// Guilds

// ingestGuild flattens a full guild payload into the store tables inside
// the caller's transaction.
func (c *Client) ingestGuild(g *model.Guild) {
	roles, channels, members := g.Roles, g.Channels, g.Members
	g.Roles, g.Channels, g.Members = nil, nil, nil
	g.RoleIDs, g.ChannelIDs = nil, nil

	c.store.PutGuild(g)
	for _, r := range roles {
		r.GuildID = g.ID
		c.store.PutRole(r)
	}
	for _, ch := range channels {
		ch.GuildID = g.ID
		c.store.PutChannel(ch)
	}
	for _, m := range members {
		m.GuildID = g.ID
		c.store.PutMember(m)
	}
}

func (c *Client) onGuildCreate(data json.RawMessage) {
	g := decode[model.Guild](data)
	if !c.inGuildScope(g.ID) {
		return
	}

	c.store.Begin()
	c.ingestGuild(g)
	c.emit(&GuildCreatedEvent{Guild: g})
	c.store.End()
}

func (c *Client) onGuildUpdate(data json.RawMessage) {
	g := decode[model.Guild](data)
	if !c.inGuildScope(g.ID) {
		return
	}
	// Updates never carry the nested sets; keep the cache-maintained
	// lists of the existing row.
	if old, ok := c.store.Guild(g.ID); ok {
		g.RoleIDs, g.ChannelIDs = old.RoleIDs, old.ChannelIDs
		if g.Emojis == nil {
			g.Emojis = old.Emojis
		}
	}
	g.Roles, g.Channels, g.Members = nil, nil, nil
	c.store.PutGuild(g)
	c.emit(&GuildUpdatedEvent{Guild: g})
}

func (c *Client) onGuildDelete(data json.RawMessage) {
	d := decode[model.Guild](data)
	if !c.inGuildScope(d.ID) {
		return
	}
	if d.Unavailable {
		// Outage, not removal: keep the cached data, flag the guild.
		if g, ok := c.store.Guild(d.ID); ok {
			g.Unavailable = true
		}
		c.emit(&GuildDeletedEvent{ID: d.ID, Unavailable: true})
		return
	}

	c.store.Begin()
	c.store.DeleteGuild(d.ID)
	c.emit(&GuildDeletedEvent{ID: d.ID})
	c.store.End()
}

// Roles

type guildRoleData struct {
	GuildID model.Snowflake `json:"guild_id"`
	Role    *model.Role     `json:"role"`
	RoleID  model.Snowflake `json:"role_id"`
}

func (c *Client) onGuildRoleCreate(data json.RawMessage) {
	d := decode[guildRoleData](data)
	if !c.inGuildScope(d.GuildID) || d.Role == nil {
		return
	}
	d.Role.GuildID = d.GuildID
	c.store.PutRole(d.Role)
	c.emit(&RoleCreatedEvent{Role: d.Role})
}

func (c *Client) onGuildRoleUpdate(data json.RawMessage) {
	d := decode[guildRoleData](data)
	if !c.inGuildScope(d.GuildID) || d.Role == nil {
		return
	}
	d.Role.GuildID = d.GuildID
	c.store.PutRole(d.Role)
	c.emit(&RoleUpdatedEvent{Role: d.Role})
}

func (c *Client) onGuildRoleDelete(data json.RawMessage) {
	d := decode[guildRoleData](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	c.store.DeleteRole(d.RoleID)
	c.emit(&RoleDeletedEvent{ID: d.RoleID, GuildID: d.GuildID})
}

// Members

type guildMemberData struct {
	model.Member
	GuildID model.Snowflake `json:"guild_id"`
}

func (c *Client) onGuildMemberUpsert(data json.RawMessage) {
	d := decode[guildMemberData](data)
	if !c.inGuildScope(d.GuildID) || d.User == nil {
		return
	}
	m := &d.Member
	m.GuildID = d.GuildID

	c.store.Begin()
	c.store.PutMember(m)
	c.emit(&MemberUpdatedEvent{Member: m})
	c.store.End()
}

func (c *Client) onGuildMemberRemove(data json.RawMessage) {
	d := decode[struct {
		GuildID model.Snowflake `json:"guild_id"`
		User    *model.User     `json:"user"`
	}](data)
	if !c.inGuildScope(d.GuildID) || d.User == nil {
		return
	}
	c.store.DeleteMember(d.GuildID, d.User.ID)
	c.emit(&MemberRemovedEvent{GuildID: d.GuildID, User: d.User})
}

func (c *Client) onGuildMembersChunk(data json.RawMessage) {
	d := decode[struct {
		GuildID model.Snowflake `json:"guild_id"`
		Members []*model.Member `json:"members"`
	}](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}

	c.store.Begin()
	for _, m := range d.Members {
		m.GuildID = d.GuildID
		c.store.PutMember(m)
	}
	c.emit(&MemberListUpdatedEvent{GuildID: d.GuildID})
	c.store.End()
}

// Bans

type guildBanData struct {
	GuildID model.Snowflake `json:"guild_id"`
	User    *model.User     `json:"user"`
	Reason  string          `json:"reason"`
}

func (c *Client) onGuildBanAdd(data json.RawMessage) {
	d := decode[guildBanData](data)
	if !c.inGuildScope(d.GuildID) || d.User == nil {
		return
	}
	b := &model.Ban{GuildID: d.GuildID, User: d.User, Reason: d.Reason}
	c.store.PutBan(b)
	c.emit(&BanAddedEvent{Ban: b})
}

func (c *Client) onGuildBanRemove(data json.RawMessage) {
	d := decode[guildBanData](data)
	if !c.inGuildScope(d.GuildID) || d.User == nil {
		return
	}
	c.store.DeleteBan(d.GuildID, d.User.ID)
	c.emit(&BanRemovedEvent{GuildID: d.GuildID, User: d.User})
}

func (c *Client) onGuildEmojisUpdate(data json.RawMessage) {
	d := decode[struct {
		GuildID model.Snowflake `json:"guild_id"`
		Emojis  []*model.Emoji  `json:"emojis"`
	}](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	if g, ok := c.store.Guild(d.GuildID); ok {
		g.Emojis = d.Emojis
	}
	c.emit(&EmojisUpdatedEvent{GuildID: d.GuildID, Emojis: d.Emojis})
}

// Channels

func (c *Client) onChannelCreate(data json.RawMessage) {
	ch := decode[model.Channel](data)
	if !c.inGuildScope(ch.GuildID) {
		return
	}
	c.store.PutChannel(ch)
	c.emit(&ChannelCreatedEvent{Channel: ch})
}

func (c *Client) onChannelUpdate(data json.RawMessage) {
	ch := decode[model.Channel](data)
	if !c.inGuildScope(ch.GuildID) {
		return
	}
	c.store.PutChannel(ch)
	c.emit(&ChannelUpdatedEvent{Channel: ch})
}

func (c *Client) onChannelDelete(data json.RawMessage) {
	ch := decode[model.Channel](data)
	if !c.inGuildScope(ch.GuildID) {
		return
	}
	c.store.Begin()
	c.store.DeleteChannel(ch.ID)
	c.emit(&ChannelDeletedEvent{ID: ch.ID, GuildID: ch.GuildID})
	c.store.End()
}

// Threads are channel rows with thread types.

func (c *Client) onThreadCreate(data json.RawMessage) {
	th := decode[model.Channel](data)
	if !c.inGuildScope(th.GuildID) {
		return
	}
	c.store.PutChannel(th)
	c.emit(&ThreadCreatedEvent{Thread: th})
}

func (c *Client) onThreadUpdate(data json.RawMessage) {
	th := decode[model.Channel](data)
	if !c.inGuildScope(th.GuildID) {
		return
	}
	c.store.PutChannel(th)
	c.emit(&ThreadUpdatedEvent{Thread: th})
}

func (c *Client) onThreadDelete(data json.RawMessage) {
	th := decode[model.Channel](data)
	if !c.inGuildScope(th.GuildID) {
		return
	}
	c.store.Begin()
	c.store.DeleteChannel(th.ID)
	c.emit(&ThreadDeletedEvent{ID: th.ID, ParentID: th.ParentID, GuildID: th.GuildID})
	c.store.End()
}

func (c *Client) onThreadListSync(data json.RawMessage) {
	d := decode[struct {
		GuildID model.Snowflake  `json:"guild_id"`
		Threads []*model.Channel `json:"threads"`
	}](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}

	c.store.Begin()
	for _, th := range d.Threads {
		th.GuildID = d.GuildID
		c.store.PutChannel(th)
	}
	c.emit(&ThreadListSyncedEvent{GuildID: d.GuildID, Threads: d.Threads})
	c.store.End()
}

// Messages

func (c *Client) onMessageCreate(data json.RawMessage) {
	m := decode[model.Message](data)
	if !c.inGuildScope(m.GuildID) {
		return
	}

	c.store.Begin()
	// Reconcile the optimistic echo: the authoritative copy replaces the
	// locally synthesized row, matched by nonce exactly once.
	if m.Nonce != "" {
		if localID, ok := c.store.TakePendingNonce(m.Nonce); ok {
			c.store.RemoveMessage(localID)
		}
	}
	c.storeMessage(m)
	c.emit(&MessageCreatedEvent{Message: m})
	c.store.End()
}

// storeMessage writes the message plus its author and mentioned users,
// and records the author as seen in the guild.
func (c *Client) storeMessage(m *model.Message) {
	c.store.PutMessage(m)
	if m.Author != nil {
		c.store.PutUser(m.Author)
		c.store.TouchGuildUser(m.GuildID, m.Author.ID)
	}
	for _, u := range m.Mentions {
		c.store.PutUser(u)
	}
	if ch, ok := c.store.Channel(m.ChannelID); ok && m.ID > ch.LastMessageID {
		ch.LastMessageID = m.ID
	}
}

// messagePatch is the partial-edit shape of MESSAGE_UPDATE; pointer
// fields tell "absent" apart from "set to zero".
type messagePatch struct {
	ID              model.Snowflake `json:"id"`
	ChannelID       model.Snowflake `json:"channel_id"`
	GuildID         model.Snowflake `json:"guild_id"`
	Content         *string         `json:"content"`
	Pinned          *bool           `json:"pinned"`
	EditedTimestamp *string         `json:"edited_timestamp"`
	Mentions        []*model.User   `json:"mentions"`
}

func (c *Client) onMessageUpdate(data json.RawMessage) {
	patch := decode[messagePatch](data)
	if !c.inGuildScope(patch.GuildID) {
		return
	}

	m, known := c.store.Message(patch.ID)
	if !known {
		// The event may be a full message the cache never saw (history
		// gap); store it whole if it has every required field.
		full := decode[model.Message](data)
		if !full.IsComplete() {
			return
		}
		c.store.Begin()
		c.storeMessage(full)
		c.emit(&MessageUpdatedEvent{Message: full})
		if full.Pinned {
			c.emit(&MessagePinnedEvent{Message: full})
		}
		c.store.End()
		return
	}

	c.store.Begin()
	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.EditedTimestamp != nil {
		m.EditedTimestamp = *patch.EditedTimestamp
		m.Edited = true
	}
	if patch.Mentions != nil {
		m.Mentions = patch.Mentions
		for _, u := range patch.Mentions {
			c.store.PutUser(u)
		}
	}
	if patch.Pinned != nil && *patch.Pinned != m.Pinned {
		m.Pinned = *patch.Pinned
		if m.Pinned {
			c.emit(&MessagePinnedEvent{Message: m})
		} else {
			c.emit(&MessageUnpinnedEvent{Message: m})
		}
	}
	c.emit(&MessageUpdatedEvent{Message: m})
	c.store.End()
}

type messageDeleteData struct {
	ID        model.Snowflake   `json:"id"`
	IDs       []model.Snowflake `json:"ids"`
	ChannelID model.Snowflake   `json:"channel_id"`
	GuildID   model.Snowflake   `json:"guild_id"`
}

func (c *Client) onMessageDelete(data json.RawMessage) {
	d := decode[messageDeleteData](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	if c.store.TombstoneMessage(d.ID) {
		c.emit(&MessageDeletedEvent{ID: d.ID, ChannelID: d.ChannelID})
	}
}

func (c *Client) onMessageDeleteBulk(data json.RawMessage) {
	d := decode[messageDeleteData](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}

	c.store.Begin()
	for _, id := range d.IDs {
		if c.store.TombstoneMessage(id) {
			c.emit(&MessageDeletedEvent{ID: id, ChannelID: d.ChannelID})
		}
	}
	c.store.End()
}

// Reactions

type reactionData struct {
	UserID    model.Snowflake `json:"user_id"`
	ChannelID model.Snowflake `json:"channel_id"`
	MessageID model.Snowflake `json:"message_id"`
	GuildID   model.Snowflake `json:"guild_id"`
	Emoji     model.Emoji     `json:"emoji"`
}

func sameEmoji(a, b model.Emoji) bool {
	if a.ID.IsValid() || b.ID.IsValid() {
		return a.ID == b.ID
	}
	return a.Name == b.Name
}

func (c *Client) onMessageReactionAdd(data json.RawMessage) {
	d := decode[reactionData](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	if m, ok := c.store.Message(d.MessageID); ok {
		found := false
		for _, r := range m.Reactions {
			if sameEmoji(r.Emoji, d.Emoji) {
				r.Count++
				if d.UserID == c.selfID {
					r.Me = true
				}
				found = true
				break
			}
		}
		if !found {
			m.Reactions = append(m.Reactions, &model.Reaction{Emoji: d.Emoji, Count: 1, Me: d.UserID == c.selfID})
		}
	}
	c.emit(&ReactionAddedEvent{MessageID: d.MessageID, ChannelID: d.ChannelID, UserID: d.UserID, Emoji: d.Emoji})
}

func (c *Client) onMessageReactionRemove(data json.RawMessage) {
	d := decode[reactionData](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	if m, ok := c.store.Message(d.MessageID); ok {
		for i, r := range m.Reactions {
			if !sameEmoji(r.Emoji, d.Emoji) {
				continue
			}
			r.Count--
			if d.UserID == c.selfID {
				r.Me = false
			}
			if r.Count <= 0 {
				m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			}
			break
		}
	}
	c.emit(&ReactionRemovedEvent{MessageID: d.MessageID, ChannelID: d.ChannelID, UserID: d.UserID, Emoji: d.Emoji})
}

func (c *Client) onMessageReactionRemoveAll(data json.RawMessage) {
	d := decode[reactionData](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	if m, ok := c.store.Message(d.MessageID); ok {
		m.Reactions = nil
	}
	c.emit(&ReactionRemovedEvent{MessageID: d.MessageID, ChannelID: d.ChannelID})
}

// Presence & typing

func (c *Client) onTypingStart(data json.RawMessage) {
	d := decode[struct {
		ChannelID model.Snowflake `json:"channel_id"`
		GuildID   model.Snowflake `json:"guild_id"`
		UserID    model.Snowflake `json:"user_id"`
		Timestamp int64           `json:"timestamp"`
	}](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}
	c.store.TouchGuildUser(d.GuildID, d.UserID)
	c.emit(&TypingStartedEvent{ChannelID: d.ChannelID, GuildID: d.GuildID, UserID: d.UserID, At: time.Unix(d.Timestamp, 0)})
}

func (c *Client) onPresenceUpdate(data json.RawMessage) {
	d := decode[struct {
		User    *model.User     `json:"user"`
		GuildID model.Snowflake `json:"guild_id"`
		Status  string          `json:"status"`
	}](data)
	if d.User == nil || !c.inGuildScope(d.GuildID) {
		return
	}
	c.store.PutPresence(d.User.ID, d.Status)
	c.emit(&PresenceUpdatedEvent{UserID: d.User.ID, GuildID: d.GuildID, Status: d.Status})
}

func (c *Client) onUserUpdate(data json.RawMessage) {
	u := decode[model.User](data)
	c.store.PutUser(u)
	c.emit(&UserUpdatedEvent{User: u})
}

// Member list sync. Items are a tagged union: a role-group header or a
// member row, told apart by which discriminant key is present and
// decoded through a small dispatch table.

type memberListItem interface {
	entry() state.MemberListEntry
}

type roleHeaderItem struct {
	ID    model.Snowflake `json:"id"`
	Count int             `json:"count"`
}

func (i *roleHeaderItem) entry() state.MemberListEntry {
	return state.MemberListEntry{RoleID: i.ID}
}

type memberRowItem struct {
	Member *model.Member `json:"-"`
}

func (i *memberRowItem) entry() state.MemberListEntry {
	if i.Member == nil || i.Member.User == nil {
		return state.MemberListEntry{}
	}
	return state.MemberListEntry{UserID: i.Member.User.ID}
}

var memberListItemDecoders = map[string]func(json.RawMessage) (memberListItem, error){
	"group": func(raw json.RawMessage) (memberListItem, error) {
		i := &roleHeaderItem{}
		return i, json.Unmarshal(raw, i)
	},
	"member": func(raw json.RawMessage) (memberListItem, error) {
		m := &model.Member{}
		if err := json.Unmarshal(raw, m); err != nil {
			return nil, err
		}
		return &memberRowItem{Member: m}, nil
	},
}

func decodeMemberListItem(raw json.RawMessage) (memberListItem, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, err
	}
	for tag, dec := range memberListItemDecoders {
		if inner, ok := tagged[tag]; ok {
			return dec(inner)
		}
	}
	return nil, fmt.Errorf("member list item has no known discriminant")
}

type memberListOp struct {
	Op    string            `json:"op"`
	Range []int             `json:"range"`
	Index int               `json:"index"`
	Items []json.RawMessage `json:"items"`
	Item  json.RawMessage   `json:"item"`
}

func (c *Client) onGuildMemberListUpdate(data json.RawMessage) {
	d := decode[struct {
		GuildID model.Snowflake `json:"guild_id"`
		Ops     []memberListOp  `json:"ops"`
	}](data)
	if !c.inGuildScope(d.GuildID) {
		return
	}

	c.store.Begin()
	for _, op := range d.Ops {
		switch op.Op {
		case "SYNC":
			if len(op.Range) != 2 || op.Range[0] < 0 {
				continue
			}
			entries := make([]state.MemberListEntry, 0, len(op.Items))
			for _, raw := range op.Items {
				item, err := decodeMemberListItem(raw)
				if err != nil {
					c.logger.Sugar().Debugf("Skipping bad member list item: %s.", err)
					continue
				}
				if row, ok := item.(*memberRowItem); ok && row.Member != nil {
					row.Member.GuildID = d.GuildID
					c.store.PutMember(row.Member)
				}
				entries = append(entries, item.entry())
			}
			c.store.SyncMemberList(d.GuildID, op.Range[0], entries)
		case "UPDATE":
			item, err := decodeMemberListItem(op.Item)
			if err != nil {
				c.logger.Sugar().Debugf("Skipping bad member list item: %s.", err)
				continue
			}
			if row, ok := item.(*memberRowItem); ok && row.Member != nil {
				row.Member.GuildID = d.GuildID
				c.store.PutMember(row.Member)
			}
			c.store.UpdateMemberListEntry(d.GuildID, op.Index, item.entry())
		default:
			c.logger.Sugar().Debugf("Ignoring unknown member list op %q.", op.Op)
		}
	}
	c.emit(&MemberListUpdatedEvent{GuildID: d.GuildID})
	c.store.End()
}
