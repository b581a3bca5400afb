package model

// ChannelType discriminates the channel table rows.
type ChannelType int

const (
	ChannelTypeGuildText ChannelType = iota
	ChannelTypeDM
	ChannelTypeGuildVoice
	ChannelTypeGroupDM
	ChannelTypeGuildCategory
	ChannelTypeGuildNews
)

const (
	ChannelTypeNewsThread ChannelType = iota + 10
	ChannelTypePublicThread
	ChannelTypePrivateThread
)

// IsThread reports whether the channel is a thread under a parent channel.
func (t ChannelType) IsThread() bool {
	return t == ChannelTypeNewsThread || t == ChannelTypePublicThread || t == ChannelTypePrivateThread
}

// OverwriteType discriminates permission overwrite targets.
type OverwriteType int

const (
	OverwriteTypeRole OverwriteType = iota
	OverwriteTypeMember
)

// PermissionOverwrite is a per-channel allow/deny delta targeting one role
// or one member.
type PermissionOverwrite struct {
	ID    Snowflake     `json:"id"`
	Type  OverwriteType `json:"type"`
	Allow Permissions   `json:"allow"`
	Deny  Permissions   `json:"deny"`
}

// ThreadMetadata carries thread lifecycle state.
type ThreadMetadata struct {
	Archived            bool   `json:"archived"`
	AutoArchiveDuration int    `json:"auto_archive_duration,omitempty"`
	ArchiveTimestamp    string `json:"archive_timestamp,omitempty"`
	Locked              bool   `json:"locked,omitempty"`
}

// Channel is any text/voice/category/thread container.
type Channel struct {
	ID                   Snowflake              `json:"id"`
	Type                 ChannelType            `json:"type"`
	GuildID              Snowflake              `json:"guild_id,omitempty"`
	ParentID             Snowflake              `json:"parent_id,omitempty"`
	Name                 string                 `json:"name,omitempty"`
	Topic                string                 `json:"topic,omitempty"`
	Position             int                    `json:"position,omitempty"`
	PermissionOverwrites []*PermissionOverwrite `json:"permission_overwrites,omitempty"`
	RateLimitPerUser     int                    `json:"rate_limit_per_user,omitempty"`
	LastMessageID        Snowflake              `json:"last_message_id,omitempty"`
	Recipients           []*User                `json:"recipients,omitempty"`
	ThreadMetadata       *ThreadMetadata        `json:"thread_metadata,omitempty"`
}
