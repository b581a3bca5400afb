package model

// Role is a guild-scoped permission holder. Position strictly orders
// precedence within the guild; a higher position outranks a lower one.
type Role struct {
	ID          Snowflake   `json:"id"`
	GuildID     Snowflake   `json:"-"`
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
	Position    int         `json:"position"`
	Color       int         `json:"color,omitempty"`
	Hoist       bool        `json:"hoist,omitempty"`
	Mentionable bool        `json:"mentionable,omitempty"`
}

// Member ties a user to a guild with guild-local state.
type Member struct {
	GuildID  Snowflake   `json:"-"`
	User     *User       `json:"user"`
	Nick     string      `json:"nick,omitempty"`
	RoleIDs  []Snowflake `json:"roles"`
	JoinedAt string      `json:"joined_at,omitempty"`
}

// DisplayName returns the guild-local name, falling back to the account
// name.
func (m *Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User != nil {
		return m.User.Username
	}
	return ""
}
