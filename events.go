package concord

import (
	"time"

	"pkg.mon.icu/concord/model"
)

// Event is a domain event delivered to subscribers. Payloads carry the
// semantically meaningful objects, never raw wire envelopes.
type Event interface {
	isEvent()
}

// Connection lifecycle

type ConnectedEvent struct {
	Resumed bool
}

type DisconnectedEvent struct {
	Reason    string
	Resumable bool
}

// ReadyEvent fires once the initial state snapshot is cached.
type ReadyEvent struct {
	Self     *model.User
	GuildIDs []model.Snowflake
}

type ResumedEvent struct{}

// Messages

type MessageCreatedEvent struct {
	Message *model.Message
}

type MessageUpdatedEvent struct {
	Message *model.Message
}

type MessageDeletedEvent struct {
	ID        model.Snowflake
	ChannelID model.Snowflake
}

type MessagePinnedEvent struct {
	Message *model.Message
}

type MessageUnpinnedEvent struct {
	Message *model.Message
}

// MessageSendFailedEvent marks an optimistic echo that the control plane
// rejected. RetryAfter is non-zero for rate-limit rejections.
type MessageSendFailedEvent struct {
	LocalID    model.Snowflake
	ChannelID  model.Snowflake
	RetryAfter time.Duration
}

type ReactionAddedEvent struct {
	MessageID model.Snowflake
	ChannelID model.Snowflake
	UserID    model.Snowflake
	Emoji     model.Emoji
}

type ReactionRemovedEvent struct {
	MessageID model.Snowflake
	ChannelID model.Snowflake
	UserID    model.Snowflake
	Emoji     model.Emoji
}

type TypingStartedEvent struct {
	ChannelID model.Snowflake
	GuildID   model.Snowflake
	UserID    model.Snowflake
	At        time.Time
}

// Channels & threads

type ChannelCreatedEvent struct {
	Channel *model.Channel
}

type ChannelUpdatedEvent struct {
	Channel *model.Channel
}

type ChannelDeletedEvent struct {
	ID      model.Snowflake
	GuildID model.Snowflake
}

type ThreadCreatedEvent struct {
	Thread *model.Channel
}

type ThreadUpdatedEvent struct {
	Thread *model.Channel
}

type ThreadDeletedEvent struct {
	ID       model.Snowflake
	ParentID model.Snowflake
	GuildID  model.Snowflake
}

type ThreadListSyncedEvent struct {
	GuildID model.Snowflake
	Threads []*model.Channel
}

// Guilds

type GuildCreatedEvent struct {
	Guild *model.Guild
}

type GuildUpdatedEvent struct {
	Guild *model.Guild
}

// GuildDeletedEvent distinguishes a temporary outage (Unavailable, cache
// preserved) from a permanent removal (cache purged).
type GuildDeletedEvent struct {
	ID          model.Snowflake
	Unavailable bool
}

type RoleCreatedEvent struct {
	Role *model.Role
}

type RoleUpdatedEvent struct {
	Role *model.Role
}

type RoleDeletedEvent struct {
	ID      model.Snowflake
	GuildID model.Snowflake
}

type MemberUpdatedEvent struct {
	Member *model.Member
}

type MemberRemovedEvent struct {
	GuildID model.Snowflake
	User    *model.User
}

type MemberListUpdatedEvent struct {
	GuildID model.Snowflake
}

type BanAddedEvent struct {
	Ban *model.Ban
}

type BanRemovedEvent struct {
	GuildID model.Snowflake
	User    *model.User
}

type EmojisUpdatedEvent struct {
	GuildID model.Snowflake
	Emojis  []*model.Emoji
}

type PresenceUpdatedEvent struct {
	UserID  model.Snowflake
	GuildID model.Snowflake
	Status  string
}

type UserUpdatedEvent struct {
	User *model.User
}

// FetchedMessagesEvent delivers a history page requested through
// FetchMessagesBefore.
type FetchedMessagesEvent struct {
	ChannelID model.Snowflake
	Messages  []*model.Message
}

// FetchedPinsEvent delivers the pinned set requested through
// FetchPinnedMessages.
type FetchedPinsEvent struct {
	ChannelID model.Snowflake
	Messages  []*model.Message
}

func (*ConnectedEvent) isEvent()         {}
func (*DisconnectedEvent) isEvent()      {}
func (*ReadyEvent) isEvent()             {}
func (*ResumedEvent) isEvent()           {}
func (*MessageCreatedEvent) isEvent()    {}
func (*MessageUpdatedEvent) isEvent()    {}
func (*MessageDeletedEvent) isEvent()    {}
func (*MessagePinnedEvent) isEvent()     {}
func (*MessageUnpinnedEvent) isEvent()   {}
func (*MessageSendFailedEvent) isEvent() {}
func (*ReactionAddedEvent) isEvent()     {}
func (*ReactionRemovedEvent) isEvent()   {}
func (*TypingStartedEvent) isEvent()     {}
func (*ChannelCreatedEvent) isEvent()    {}
func (*ChannelUpdatedEvent) isEvent()    {}
func (*ChannelDeletedEvent) isEvent()    {}
func (*ThreadCreatedEvent) isEvent()     {}
func (*ThreadUpdatedEvent) isEvent()     {}
func (*ThreadDeletedEvent) isEvent()     {}
func (*ThreadListSyncedEvent) isEvent()  {}
func (*GuildCreatedEvent) isEvent()      {}
func (*GuildUpdatedEvent) isEvent()      {}
func (*GuildDeletedEvent) isEvent()      {}
func (*RoleCreatedEvent) isEvent()       {}
func (*RoleUpdatedEvent) isEvent()       {}
func (*RoleDeletedEvent) isEvent()       {}
func (*MemberUpdatedEvent) isEvent()     {}
func (*MemberRemovedEvent) isEvent()     {}
func (*MemberListUpdatedEvent) isEvent() {}
func (*BanAddedEvent) isEvent()          {}
func (*BanRemovedEvent) isEvent()        {}
func (*EmojisUpdatedEvent) isEvent()     {}
func (*PresenceUpdatedEvent) isEvent()   {}
func (*UserUpdatedEvent) isEvent()       {}
func (*FetchedMessagesEvent) isEvent()   {}
func (*FetchedPinsEvent) isEvent()       {}
