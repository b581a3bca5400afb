package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkg.mon.icu/concord/model"
)

func TestStoreGuildChannelListConsistency(t *testing.T) {
	s := NewStore()
	s.PutGuild(&model.Guild{ID: 1, Name: "g"})
	s.PutChannel(&model.Channel{ID: 10, GuildID: 1})
	s.PutChannel(&model.Channel{ID: 11, GuildID: 1})

	g, ok := s.Guild(1)
	require.True(t, ok)
	assert.Equal(t, []model.Snowflake{10, 11}, g.ChannelIDs)

	// Overwriting an already-known channel must not duplicate the entry.
	s.PutChannel(&model.Channel{ID: 10, GuildID: 1, Name: "renamed"})
	assert.Equal(t, []model.Snowflake{10, 11}, g.ChannelIDs)

	s.DeleteChannel(10)
	assert.Equal(t, []model.Snowflake{11}, g.ChannelIDs)
	_, ok = s.Channel(10)
	assert.False(t, ok)
}

func TestStoreDeleteGuildPurgesScopedRows(t *testing.T) {
	s := NewStore()
	s.PutGuild(&model.Guild{ID: 1})
	s.PutRole(&model.Role{ID: 100, GuildID: 1})
	s.PutChannel(&model.Channel{ID: 10, GuildID: 1})
	s.PutMember(&model.Member{GuildID: 1, User: &model.User{ID: 7}})
	s.PutBan(&model.Ban{GuildID: 1, User: &model.User{ID: 8}})
	s.PutMessage(&model.Message{ID: 1000, ChannelID: 10})

	s.DeleteGuild(1)

	_, ok := s.Guild(1)
	assert.False(t, ok)
	_, ok = s.Role(100)
	assert.False(t, ok)
	_, ok = s.Channel(10)
	assert.False(t, ok)
	_, ok = s.Member(1, 7)
	assert.False(t, ok)
	_, ok = s.Ban(1, 8)
	assert.False(t, ok)
	_, ok = s.Message(1000)
	assert.False(t, ok)

	// Users are global, they survive guild removal.
	_, ok = s.User(7)
	assert.True(t, ok)
}

func TestStoreMessageOrderAndTombstone(t *testing.T) {
	s := NewStore()
	// Out-of-order arrival still yields ascending id order.
	s.PutMessage(&model.Message{ID: 30, ChannelID: 5})
	s.PutMessage(&model.Message{ID: 10, ChannelID: 5})
	s.PutMessage(&model.Message{ID: 20, ChannelID: 5})
	assert.Equal(t, []model.Snowflake{10, 20, 30}, s.ChannelMessages(5, 0))
	assert.Equal(t, []model.Snowflake{20, 30}, s.ChannelMessages(5, 2))

	require.True(t, s.TombstoneMessage(20))
	m, ok := s.Message(20)
	require.True(t, ok)
	assert.True(t, m.Deleted)
	// Tombstoned rows stay listed so the UI can render the removal.
	assert.Len(t, s.ChannelMessages(5, 0), 3)

	assert.False(t, s.TombstoneMessage(999))

	s.RemoveMessage(20)
	assert.Equal(t, []model.Snowflake{10, 30}, s.ChannelMessages(5, 0))
}

func TestStorePendingNonceMatchesOnce(t *testing.T) {
	s := NewStore()
	s.AddPendingNonce("n-1", 77)

	id, ok := s.TakePendingNonce("n-1")
	require.True(t, ok)
	assert.Equal(t, model.Snowflake(77), id)

	_, ok = s.TakePendingNonce("n-1")
	assert.False(t, ok)
}

func TestStoreTransactionDefersCallbacks(t *testing.T) {
	s := NewStore()
	var order []string

	s.Begin()
	s.Defer(func() { order = append(order, "first") })
	s.Begin() // nested bracket folds into the outer one
	s.Defer(func() { order = append(order, "second") })
	s.End()
	assert.Empty(t, order, "inner end must not flush")
	s.End()
	assert.Equal(t, []string{"first", "second"}, order)

	// Outside a bracket, Defer runs immediately.
	s.Defer(func() { order = append(order, "third") })
	assert.Equal(t, []string{"first", "second", "third"}, order)

	// Unbalanced End is harmless.
	s.End()
}

func TestStoreMemberListWindowOps(t *testing.T) {
	s := NewStore()
	s.SyncMemberList(1, 0, []MemberListEntry{
		{RoleID: 100},
		{UserID: 7},
		{UserID: 8},
	})
	list := s.MemberList(1)
	require.Len(t, list, 3)
	assert.True(t, list[0].IsHeader())
	assert.False(t, list[1].IsHeader())

	// A window replace further out extends the list.
	s.SyncMemberList(1, 2, []MemberListEntry{{UserID: 9}, {UserID: 10}})
	list = s.MemberList(1)
	require.Len(t, list, 4)
	assert.Equal(t, model.Snowflake(9), list[2].UserID)

	s.UpdateMemberListEntry(1, 1, MemberListEntry{UserID: 11})
	assert.Equal(t, model.Snowflake(11), s.MemberList(1)[1].UserID)

	// Out-of-range patches are dropped.
	s.UpdateMemberListEntry(1, 99, MemberListEntry{UserID: 12})
	assert.Len(t, s.MemberList(1), 4)

	// Negative window offsets are dropped too.
	s.SyncMemberList(1, -5, []MemberListEntry{{UserID: 13}})
	assert.Len(t, s.MemberList(1), 4)
}

func TestStoreAbortDiscardsOpenTransaction(t *testing.T) {
	s := NewStore()
	var ran bool

	s.Begin()
	s.Defer(func() { ran = true })
	s.Abort()
	assert.False(t, ran, "aborted deferrals must not run")

	// The bracket is fully reset: later deferrals run immediately again.
	s.Defer(func() { ran = true })
	assert.True(t, ran)
}

func TestStoreLookupsNeverFail(t *testing.T) {
	s := NewStore()
	_, ok := s.Guild(1)
	assert.False(t, ok)
	_, ok = s.Channel(1)
	assert.False(t, ok)
	_, ok = s.Message(1)
	assert.False(t, ok)
	_, ok = s.Member(1, 2)
	assert.False(t, ok)
	assert.Empty(t, s.ChannelMessages(1, 0))
	assert.Empty(t, s.MemberList(1))
	s.DeleteChannel(1)
	s.DeleteGuild(1)
	s.DeleteRole(1)
}

func TestStoreResetClearsEverything(t *testing.T) {
	s := NewStore()
	s.PutGuild(&model.Guild{ID: 1})
	s.PutUser(&model.User{ID: 2})
	s.AddPendingNonce("n", 3)
	s.Reset()

	_, ok := s.Guild(1)
	assert.False(t, ok)
	_, ok = s.User(2)
	assert.False(t, ok)
	_, ok = s.TakePendingNonce("n")
	assert.False(t, ok)
}
