package model

// Reaction is an aggregated emoji reaction on a message.
type Reaction struct {
	Emoji Emoji `json:"emoji"`
	Count int   `json:"count"`
	Me    bool  `json:"me,omitempty"`
}

// MessageReference points a reply at the message it answers.
type MessageReference struct {
	MessageID Snowflake `json:"message_id,omitempty"`
	ChannelID Snowflake `json:"channel_id,omitempty"`
	GuildID   Snowflake `json:"guild_id,omitempty"`
}

// Message is a chat message row. Deleted stays in the cache as a
// tombstone so consumers can render a removal marker in place.
type Message struct {
	ID              Snowflake         `json:"id"`
	ChannelID       Snowflake         `json:"channel_id"`
	GuildID         Snowflake         `json:"guild_id,omitempty"`
	Author          *User             `json:"author,omitempty"`
	Content         string            `json:"content"`
	Timestamp       string            `json:"timestamp,omitempty"`
	EditedTimestamp string            `json:"edited_timestamp,omitempty"`
	Pinned          bool              `json:"pinned,omitempty"`
	Nonce           string            `json:"nonce,omitempty"`
	Mentions        []*User           `json:"mentions,omitempty"`
	Reactions       []*Reaction       `json:"reactions,omitempty"`
	Reference       *MessageReference `json:"message_reference,omitempty"`

	// Cache-maintained flags, never on the wire.
	Deleted bool `json:"-"`
	Edited  bool `json:"-"`
	Pending bool `json:"-"`
	Failed  bool `json:"-"`
}

// IsComplete reports whether the payload carries every field a freshly
// created message has. MESSAGE_UPDATE uses this to tell a full message
// apart from a partial edit.
func (m *Message) IsComplete() bool {
	return m.ID.IsValid() && m.ChannelID.IsValid() && m.Author != nil && m.Timestamp != ""
}
