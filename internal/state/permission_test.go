package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pkg.mon.icu/concord/model"
)

const (
	guildID   = model.Snowflake(1)
	ownerID   = model.Snowflake(2)
	userID    = model.Snowflake(3)
	roleRID   = model.Snowflake(100)
	channelID = model.Snowflake(10)
)

// permStore builds a guild with an @everyone role and one member.
func permStore(everyonePerms model.Permissions) *Store {
	s := NewStore()
	s.PutGuild(&model.Guild{ID: guildID, OwnerID: ownerID})
	s.PutRole(&model.Role{ID: guildID, GuildID: guildID, Permissions: everyonePerms, Position: 0})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}})
	return s
}

func TestOwnerBypass(t *testing.T) {
	s := permStore(0)
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: ownerID}})
	// Zero roles assigned, still everything.
	assert.Equal(t, model.PermissionsAll, s.BasePermissions(ownerID, guildID))
}

func TestBasePermissionsUnionRoles(t *testing.T) {
	s := permStore(model.PermissionViewChannel)
	s.PutRole(&model.Role{ID: roleRID, GuildID: guildID, Permissions: model.PermissionSendMessages, Position: 1})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}, RoleIDs: []model.Snowflake{roleRID}})

	p := s.BasePermissions(userID, guildID)
	assert.True(t, p.Has(model.PermissionViewChannel|model.PermissionSendMessages))
	assert.False(t, p.Has(model.PermissionBanMembers))
}

func TestAdministratorShortCircuit(t *testing.T) {
	s := permStore(0)
	s.PutRole(&model.Role{ID: roleRID, GuildID: guildID, Permissions: model.PermissionAdministrator, Position: 1})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}, RoleIDs: []model.Snowflake{roleRID}})
	s.PutChannel(&model.Channel{ID: channelID, GuildID: guildID, PermissionOverwrites: []*model.PermissionOverwrite{
		// Deny overwrites anywhere cannot touch an administrator.
		{ID: guildID, Type: model.OverwriteTypeRole, Deny: model.PermissionsAll},
		{ID: userID, Type: model.OverwriteTypeMember, Deny: model.PermissionsAll},
	}})

	base := s.BasePermissions(userID, guildID)
	assert.Equal(t, model.PermissionsAll, base)
	assert.Equal(t, model.PermissionsAll, s.ApplyChannelOverwrites(base, userID, channelID))
	assert.Equal(t, model.PermissionsAll, s.ChannelPermissions(userID, channelID))
}

func TestMemberOverwriteOutranksRoleTier(t *testing.T) {
	// @everyone denies VIEW_CHANNEL, role R allows it back, the
	// member-specific overwrite denies it again: denied wins.
	s := permStore(0)
	s.PutRole(&model.Role{ID: roleRID, GuildID: guildID, Permissions: 0, Position: 1})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}, RoleIDs: []model.Snowflake{roleRID}})
	s.PutChannel(&model.Channel{ID: channelID, GuildID: guildID, PermissionOverwrites: []*model.PermissionOverwrite{
		{ID: guildID, Type: model.OverwriteTypeRole, Deny: model.PermissionViewChannel},
		{ID: roleRID, Type: model.OverwriteTypeRole, Allow: model.PermissionViewChannel},
		{ID: userID, Type: model.OverwriteTypeMember, Deny: model.PermissionViewChannel},
	}})

	p := s.ChannelPermissions(userID, channelID)
	assert.False(t, p.Has(model.PermissionViewChannel))
}

func TestRoleAllowBeatsSiblingRoleDeny(t *testing.T) {
	// At the role tier, denies and allows are unioned and allow is
	// applied after deny, so an allow from one role wins over a deny
	// from a sibling role.
	roleQ := model.Snowflake(101)
	s := permStore(0)
	s.PutRole(&model.Role{ID: roleRID, GuildID: guildID, Position: 1})
	s.PutRole(&model.Role{ID: roleQ, GuildID: guildID, Position: 2})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}, RoleIDs: []model.Snowflake{roleRID, roleQ}})
	s.PutChannel(&model.Channel{ID: channelID, GuildID: guildID, PermissionOverwrites: []*model.PermissionOverwrite{
		{ID: roleRID, Type: model.OverwriteTypeRole, Deny: model.PermissionSendMessages},
		{ID: roleQ, Type: model.OverwriteTypeRole, Allow: model.PermissionSendMessages},
	}})

	p := s.ChannelPermissions(userID, channelID)
	assert.True(t, p.Has(model.PermissionSendMessages))
}

func TestEveryoneOverwriteBelowRoleOverwrites(t *testing.T) {
	s := permStore(0)
	s.PutRole(&model.Role{ID: roleRID, GuildID: guildID, Position: 1})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}, RoleIDs: []model.Snowflake{roleRID}})
	s.PutChannel(&model.Channel{ID: channelID, GuildID: guildID, PermissionOverwrites: []*model.PermissionOverwrite{
		{ID: guildID, Type: model.OverwriteTypeRole, Deny: model.PermissionAddReactions},
		{ID: roleRID, Type: model.OverwriteTypeRole, Allow: model.PermissionAddReactions},
	}})

	p := s.ChannelPermissions(userID, channelID)
	assert.True(t, p.Has(model.PermissionAddReactions))
}

func TestMissingEntitiesResolveToDenied(t *testing.T) {
	s := NewStore()
	assert.Equal(t, model.PermissionsNone, s.BasePermissions(userID, guildID))
	assert.Equal(t, model.PermissionsNone, s.ChannelPermissions(userID, channelID))

	// A channel whose guild never loaded applies no overwrites.
	s.PutChannel(&model.Channel{ID: channelID, GuildID: guildID})
	assert.Equal(t, model.PermissionsNone, s.ChannelPermissions(userID, channelID))
}

func TestDMChannelGrantsFixedSet(t *testing.T) {
	s := NewStore()
	s.PutChannel(&model.Channel{ID: channelID, Type: model.ChannelTypeDM})
	p := s.ChannelPermissions(userID, channelID)
	assert.True(t, p.Has(model.PermissionSendMessages))
	assert.False(t, p.Has(model.PermissionBanMembers))
}

func TestCanManageMember(t *testing.T) {
	actor, target := model.Snowflake(20), model.Snowflake(21)
	high, low := model.Snowflake(200), model.Snowflake(201)

	s := NewStore()
	s.PutGuild(&model.Guild{ID: guildID, OwnerID: ownerID})
	s.PutRole(&model.Role{ID: high, GuildID: guildID, Position: 5})
	s.PutRole(&model.Role{ID: low, GuildID: guildID, Position: 2})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: actor}, RoleIDs: []model.Snowflake{high}})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: target}, RoleIDs: []model.Snowflake{low}})
	s.PutMember(&model.Member{GuildID: guildID, User: &model.User{ID: userID}})

	assert.True(t, s.CanManageMember(guildID, actor, target))
	assert.False(t, s.CanManageMember(guildID, target, actor))
	// Equal seniority does not outrank.
	assert.False(t, s.CanManageMember(guildID, actor, actor))
	// No roles ranks below every role.
	assert.True(t, s.CanManageMember(guildID, target, userID))
	// Nobody manages the owner; the owner manages everyone.
	assert.False(t, s.CanManageMember(guildID, actor, ownerID))
	assert.True(t, s.CanManageMember(guildID, ownerID, actor))
}
