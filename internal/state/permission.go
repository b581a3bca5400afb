package state

import (
	"pkg.mon.icu/concord/model"
)

// Permission resolution. Precedence, lowest to highest: @everyone role,
// other roles (unioned), @everyone channel overwrite, role channel
// overwrites (unioned), member-specific channel overwrite. Deny is applied
// before allow within each tier. Any entity missing from the cache
// resolves toward "no permissions" instead of erroring.

// BasePermissions computes guild-wide permissions for the user.
func (s *Store) BasePermissions(userID, guildID model.Snowflake) model.Permissions {
	g, ok := s.guilds[guildID]
	if !ok {
		return model.PermissionsNone
	}
	if g.OwnerID == userID {
		return model.PermissionsAll
	}

	var perms model.Permissions
	// The @everyone role shares the guild's id.
	if everyone, ok := s.roles[guildID]; ok {
		perms = everyone.Permissions
	}

	m, ok := s.members[memberKey{guildID, userID}]
	if ok {
		for _, rID := range m.RoleIDs {
			if r, ok := s.roles[rID]; ok {
				perms |= r.Permissions
			}
		}
	}

	if perms.Has(model.PermissionAdministrator) {
		return model.PermissionsAll
	}
	return perms
}

// ApplyChannelOverwrites layers the channel's overwrites on top of base.
func (s *Store) ApplyChannelOverwrites(base model.Permissions, userID, channelID model.Snowflake) model.Permissions {
	if base.Has(model.PermissionAdministrator) {
		return model.PermissionsAll
	}
	c, ok := s.channels[channelID]
	if !ok {
		return base
	}

	perms := base

	// @everyone overwrite targets the guild id.
	for _, ow := range c.PermissionOverwrites {
		if ow.Type == model.OverwriteTypeRole && ow.ID == c.GuildID {
			perms = perms&^ow.Deny | ow.Allow
			break
		}
	}

	var memberRoles map[model.Snowflake]struct{}
	if m, ok := s.members[memberKey{c.GuildID, userID}]; ok {
		memberRoles = make(map[model.Snowflake]struct{}, len(m.RoleIDs))
		for _, rID := range m.RoleIDs {
			memberRoles[rID] = struct{}{}
		}
	}

	// All role-targeted overwrites at one tier: union denies, union
	// allows, then deny-before-allow once. An allow from one role beats a
	// deny from a sibling role.
	var allow, deny model.Permissions
	for _, ow := range c.PermissionOverwrites {
		if ow.Type != model.OverwriteTypeRole || ow.ID == c.GuildID {
			continue
		}
		if _, held := memberRoles[ow.ID]; held {
			allow |= ow.Allow
			deny |= ow.Deny
		}
	}
	perms = perms&^deny | allow

	// Member-specific overwrite wins over everything above.
	for _, ow := range c.PermissionOverwrites {
		if ow.Type == model.OverwriteTypeMember && ow.ID == userID {
			perms = perms&^ow.Deny | ow.Allow
			break
		}
	}

	return perms
}

// ChannelPermissions is the composition of BasePermissions and
// ApplyChannelOverwrites for the channel's guild. DM channels grant the
// fixed DM set.
func (s *Store) ChannelPermissions(userID, channelID model.Snowflake) model.Permissions {
	c, ok := s.channels[channelID]
	if !ok {
		return model.PermissionsNone
	}
	if !c.GuildID.IsValid() {
		return dmPermissions
	}
	base := s.BasePermissions(userID, c.GuildID)
	return s.ApplyChannelOverwrites(base, userID, channelID)
}

const dmPermissions = model.PermissionViewChannel |
	model.PermissionSendMessages |
	model.PermissionReadMessageHistory |
	model.PermissionAddReactions |
	model.PermissionEmbedLinks |
	model.PermissionAttachFiles

// HighestRolePosition returns the position of the member's most senior
// role. Members with no roles rank below every role.
func (s *Store) HighestRolePosition(guildID, userID model.Snowflake) int {
	m, ok := s.members[memberKey{guildID, userID}]
	if !ok {
		return -1
	}
	pos := -1
	for _, rID := range m.RoleIDs {
		if r, ok := s.roles[rID]; ok && r.Position > pos {
			pos = r.Position
		}
	}
	return pos
}

// CanManageMember reports whether actor outranks target in the guild's
// role hierarchy. The owner outranks everyone and cannot be managed.
func (s *Store) CanManageMember(guildID, actorID, targetID model.Snowflake) bool {
	g, ok := s.guilds[guildID]
	if !ok {
		return false
	}
	if g.OwnerID == targetID {
		return false
	}
	if g.OwnerID == actorID {
		return true
	}
	return s.HighestRolePosition(guildID, actorID) > s.HighestRolePosition(guildID, targetID)
}
