package state

import (
	"sort"

	"pkg.mon.icu/concord/model"
)

// memberKey addresses guild-scoped per-user rows.
type memberKey struct {
	Guild model.Snowflake
	User  model.Snowflake
}

// Store is the in-memory object cache. It is confined to the Loop's owner
// goroutine and therefore completely unsynchronized: every write and every
// read happens on that one context.
//
// All writes are overwrite-by-key; partial-field merges are the caller's
// job. Lookups return the zero value and false instead of failing so
// handlers can no-op on late or duplicate events.
type Store struct {
	guilds   map[model.Snowflake]*model.Guild
	channels map[model.Snowflake]*model.Channel
	users    map[model.Snowflake]*model.User
	roles    map[model.Snowflake]*model.Role
	members  map[memberKey]*model.Member
	bans     map[memberKey]*model.Ban
	messages map[model.Snowflake]*model.Message

	// channelMessages keeps per-channel message ids in ascending id order
	// so history reads stay chronological.
	channelMessages map[model.Snowflake][]model.Snowflake

	// guildUsers records which users have been seen in which guild, for
	// member-list completion.
	guildUsers map[model.Snowflake]map[model.Snowflake]struct{}

	presences map[model.Snowflake]string

	// memberLists holds the ordered member sidebar per guild, a mix of
	// role headers and member rows.
	memberLists map[model.Snowflake][]MemberListEntry

	// pendingNonces maps optimistic-send nonces to their local temp ids.
	// A nonce is reconciled exactly once.
	pendingNonces map[string]model.Snowflake

	txDepth  int
	deferred []func()
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops every table. Called on client stop.
func (s *Store) Reset() {
	s.guilds = make(map[model.Snowflake]*model.Guild)
	s.channels = make(map[model.Snowflake]*model.Channel)
	s.users = make(map[model.Snowflake]*model.User)
	s.roles = make(map[model.Snowflake]*model.Role)
	s.members = make(map[memberKey]*model.Member)
	s.bans = make(map[memberKey]*model.Ban)
	s.messages = make(map[model.Snowflake]*model.Message)
	s.channelMessages = make(map[model.Snowflake][]model.Snowflake)
	s.guildUsers = make(map[model.Snowflake]map[model.Snowflake]struct{})
	s.presences = make(map[model.Snowflake]string)
	s.memberLists = make(map[model.Snowflake][]MemberListEntry)
	s.pendingNonces = make(map[string]model.Snowflake)
	s.txDepth = 0
	s.deferred = nil
}

// Transactions

// Begin opens a transaction bracket. Callbacks registered with Defer are
// held until the outermost End, which is what keeps subscribers from
// observing a half-applied batch.
func (s *Store) Begin() {
	s.txDepth++
}

// End closes the bracket and, on the outermost one, runs the deferred
// callbacks in registration order.
func (s *Store) End() {
	if s.txDepth == 0 {
		return
	}
	s.txDepth--
	if s.txDepth > 0 {
		return
	}
	deferred := s.deferred
	s.deferred = nil
	for _, fn := range deferred {
		fn()
	}
}

// Abort discards any open transaction bracket together with its deferred
// callbacks. Called when a handler fails mid-bracket, so a leaked Begin
// cannot park every later emission in the deferred list.
func (s *Store) Abort() {
	s.txDepth = 0
	s.deferred = nil
}

// Defer runs fn after the current transaction commits, or immediately if
// no transaction is open.
func (s *Store) Defer(fn func()) {
	if s.txDepth > 0 {
		s.deferred = append(s.deferred, fn)
		return
	}
	fn()
}

// Guilds

func (s *Store) PutGuild(g *model.Guild) {
	s.guilds[g.ID] = g
}

func (s *Store) Guild(id model.Snowflake) (*model.Guild, bool) {
	g, ok := s.guilds[id]
	return g, ok
}

// DeleteGuild purges the guild row and everything scoped to it.
func (s *Store) DeleteGuild(id model.Snowflake) {
	g, ok := s.guilds[id]
	if !ok {
		return
	}
	for _, cID := range g.ChannelIDs {
		s.deleteChannelRow(cID)
	}
	for _, rID := range g.RoleIDs {
		delete(s.roles, rID)
	}
	for k := range s.members {
		if k.Guild == id {
			delete(s.members, k)
		}
	}
	for k := range s.bans {
		if k.Guild == id {
			delete(s.bans, k)
		}
	}
	delete(s.guildUsers, id)
	delete(s.memberLists, id)
	delete(s.guilds, id)
}

// Channels

// PutChannel stores the channel and keeps the owning guild's channel-id
// list consistent.
func (s *Store) PutChannel(c *model.Channel) {
	if _, seen := s.channels[c.ID]; !seen && c.GuildID.IsValid() {
		if g, ok := s.guilds[c.GuildID]; ok {
			g.ChannelIDs = append(g.ChannelIDs, c.ID)
		}
	}
	s.channels[c.ID] = c
}

func (s *Store) Channel(id model.Snowflake) (*model.Channel, bool) {
	c, ok := s.channels[id]
	return c, ok
}

func (s *Store) DeleteChannel(id model.Snowflake) {
	c, ok := s.channels[id]
	if !ok {
		return
	}
	if c.GuildID.IsValid() {
		if g, gok := s.guilds[c.GuildID]; gok {
			g.ChannelIDs = removeID(g.ChannelIDs, id)
		}
	}
	s.deleteChannelRow(id)
}

func (s *Store) deleteChannelRow(id model.Snowflake) {
	for _, mID := range s.channelMessages[id] {
		delete(s.messages, mID)
	}
	delete(s.channelMessages, id)
	delete(s.channels, id)
}

// Overwrite returns the channel overwrite targeting id, if any.
func (s *Store) Overwrite(channelID, targetID model.Snowflake) (*model.PermissionOverwrite, bool) {
	c, ok := s.channels[channelID]
	if !ok {
		return nil, false
	}
	for _, ow := range c.PermissionOverwrites {
		if ow.ID == targetID {
			return ow, true
		}
	}
	return nil, false
}

// Users

func (s *Store) PutUser(u *model.User) {
	s.users[u.ID] = u
}

func (s *Store) User(id model.Snowflake) (*model.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Roles

// PutRole stores the role and keeps the owning guild's role-id list
// consistent.
func (s *Store) PutRole(r *model.Role) {
	if _, seen := s.roles[r.ID]; !seen && r.GuildID.IsValid() {
		if g, ok := s.guilds[r.GuildID]; ok {
			g.RoleIDs = append(g.RoleIDs, r.ID)
		}
	}
	s.roles[r.ID] = r
}

func (s *Store) Role(id model.Snowflake) (*model.Role, bool) {
	r, ok := s.roles[id]
	return r, ok
}

func (s *Store) DeleteRole(id model.Snowflake) {
	r, ok := s.roles[id]
	if !ok {
		return
	}
	if g, gok := s.guilds[r.GuildID]; gok {
		g.RoleIDs = removeID(g.RoleIDs, id)
	}
	delete(s.roles, id)
}

// Members

func (s *Store) PutMember(m *model.Member) {
	if m.User == nil {
		return
	}
	s.members[memberKey{m.GuildID, m.User.ID}] = m
	s.PutUser(m.User)
	s.TouchGuildUser(m.GuildID, m.User.ID)
}

func (s *Store) Member(guildID, userID model.Snowflake) (*model.Member, bool) {
	m, ok := s.members[memberKey{guildID, userID}]
	return m, ok
}

func (s *Store) DeleteMember(guildID, userID model.Snowflake) {
	delete(s.members, memberKey{guildID, userID})
	if us, ok := s.guildUsers[guildID]; ok {
		delete(us, userID)
	}
}

// TouchGuildUser records that a user was seen participating in a guild.
func (s *Store) TouchGuildUser(guildID, userID model.Snowflake) {
	if !guildID.IsValid() || !userID.IsValid() {
		return
	}
	us, ok := s.guildUsers[guildID]
	if !ok {
		us = make(map[model.Snowflake]struct{})
		s.guildUsers[guildID] = us
	}
	us[userID] = struct{}{}
}

// GuildUserIDs returns every user id seen in the guild, unordered.
func (s *Store) GuildUserIDs(guildID model.Snowflake) []model.Snowflake {
	us := s.guildUsers[guildID]
	ids := make([]model.Snowflake, 0, len(us))
	for id := range us {
		ids = append(ids, id)
	}
	return ids
}

// Bans

func (s *Store) PutBan(b *model.Ban) {
	if b.User == nil {
		return
	}
	s.bans[memberKey{b.GuildID, b.User.ID}] = b
}

func (s *Store) Ban(guildID, userID model.Snowflake) (*model.Ban, bool) {
	b, ok := s.bans[memberKey{guildID, userID}]
	return b, ok
}

func (s *Store) DeleteBan(guildID, userID model.Snowflake) {
	delete(s.bans, memberKey{guildID, userID})
}

// Messages

// PutMessage stores the message and inserts its id into the channel's
// ordered id list. Overwrites (edits, echo reconciliation) keep the
// existing position.
func (s *Store) PutMessage(m *model.Message) {
	if _, seen := s.messages[m.ID]; !seen {
		ids := s.channelMessages[m.ChannelID]
		i := sort.Search(len(ids), func(i int) bool { return ids[i] >= m.ID })
		ids = append(ids, 0)
		copy(ids[i+1:], ids[i:])
		ids[i] = m.ID
		s.channelMessages[m.ChannelID] = ids
	}
	s.messages[m.ID] = m
}

func (s *Store) Message(id model.Snowflake) (*model.Message, bool) {
	m, ok := s.messages[id]
	return m, ok
}

// TombstoneMessage marks the message deleted while keeping its row, so a
// removal marker can be rendered in place. Reports whether the id was
// known.
func (s *Store) TombstoneMessage(id model.Snowflake) bool {
	m, ok := s.messages[id]
	if !ok {
		return false
	}
	m.Deleted = true
	return true
}

// RemoveMessage drops the row entirely (used when a pending echo is
// replaced by its authoritative copy under a different id).
func (s *Store) RemoveMessage(id model.Snowflake) {
	m, ok := s.messages[id]
	if !ok {
		return
	}
	s.channelMessages[m.ChannelID] = removeID(s.channelMessages[m.ChannelID], id)
	delete(s.messages, id)
}

// ChannelMessages returns up to limit message ids of the channel ending
// at the newest, ascending. limit <= 0 means all.
func (s *Store) ChannelMessages(channelID model.Snowflake, limit int) []model.Snowflake {
	ids := s.channelMessages[channelID]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]model.Snowflake, len(ids))
	copy(out, ids)
	return out
}

// Optimistic echo bookkeeping

// AddPendingNonce registers a nonce for a locally inserted, unconfirmed
// message.
func (s *Store) AddPendingNonce(nonce string, localID model.Snowflake) {
	s.pendingNonces[nonce] = localID
}

// TakePendingNonce resolves a nonce to its local temp id, removing it so
// the match happens exactly once.
func (s *Store) TakePendingNonce(nonce string) (model.Snowflake, bool) {
	id, ok := s.pendingNonces[nonce]
	if ok {
		delete(s.pendingNonces, nonce)
	}
	return id, ok
}

// Member list

// MemberListEntry is one row of a guild's member sidebar: either a role
// header or a member row, never both.
type MemberListEntry struct {
	RoleID model.Snowflake
	UserID model.Snowflake
}

// IsHeader reports whether the entry is a role group header.
func (e MemberListEntry) IsHeader() bool {
	return e.RoleID.IsValid()
}

// SyncMemberList replaces the window [start, start+len(entries)) of the
// guild's member list, extending it as needed. Negative offsets are
// ignored.
func (s *Store) SyncMemberList(guildID model.Snowflake, start int, entries []MemberListEntry) {
	if start < 0 {
		return
	}
	list := s.memberLists[guildID]
	if need := start + len(entries); len(list) < need {
		list = append(list, make([]MemberListEntry, need-len(list))...)
	}
	copy(list[start:], entries)
	s.memberLists[guildID] = list
}

// UpdateMemberListEntry patches one row in place. Out-of-range indexes
// are ignored, late events against a shrunk list are harmless.
func (s *Store) UpdateMemberListEntry(guildID model.Snowflake, index int, entry MemberListEntry) {
	list := s.memberLists[guildID]
	if index < 0 || index >= len(list) {
		return
	}
	list[index] = entry
}

// MemberList returns a copy of the guild's member sidebar rows.
func (s *Store) MemberList(guildID model.Snowflake) []MemberListEntry {
	list := s.memberLists[guildID]
	out := make([]MemberListEntry, len(list))
	copy(out, list)
	return out
}

// Presence

func (s *Store) PutPresence(userID model.Snowflake, status string) {
	s.presences[userID] = status
}

func (s *Store) Presence(userID model.Snowflake) (string, bool) {
	p, ok := s.presences[userID]
	return p, ok
}

func removeID(ids []model.Snowflake, id model.Snowflake) []model.Snowflake {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
