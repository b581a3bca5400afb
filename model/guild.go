package model

// Guild is a server-side community. READY and GUILD_CREATE deliver the
// full shape; GUILD_DELETE may deliver only ID plus Unavailable.
type Guild struct {
	ID          Snowflake `json:"id"`
	Name        string    `json:"name"`
	OwnerID     Snowflake `json:"owner_id"`
	Features    []string  `json:"features,omitempty"`
	Unavailable bool      `json:"unavailable,omitempty"`

	// Present on GUILD_CREATE only; flattened into the store tables.
	Roles    []*Role    `json:"roles,omitempty"`
	Channels []*Channel `json:"channels,omitempty"`
	Emojis   []*Emoji   `json:"emojis,omitempty"`
	Members  []*Member  `json:"members,omitempty"`

	// RoleIDs and ChannelIDs are maintained by the cache, not the wire.
	RoleIDs    []Snowflake `json:"-"`
	ChannelIDs []Snowflake `json:"-"`
}

// Emoji is a guild-scoped custom emoji.
type Emoji struct {
	ID       Snowflake `json:"id"`
	Name     string    `json:"name"`
	Animated bool      `json:"animated,omitempty"`
}

// Ban is a guild-scoped ban entry.
type Ban struct {
	GuildID Snowflake `json:"-"`
	User    *User     `json:"user"`
	Reason  string    `json:"reason,omitempty"`
}
