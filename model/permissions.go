package model

import "bytes"

// Permissions is a bitset of access rights. The wire form is a quoted
// decimal string, same as identifiers.
type Permissions uint64

const (
	PermissionCreateInvite Permissions = 1 << iota
	PermissionKickMembers
	PermissionBanMembers
	PermissionAdministrator
	PermissionManageChannels
	PermissionManageGuild
	PermissionAddReactions
	PermissionViewAuditLog
	PermissionPrioritySpeaker
	PermissionStream
	PermissionViewChannel
	PermissionSendMessages
	PermissionSendTTSMessages
	PermissionManageMessages
	PermissionEmbedLinks
	PermissionAttachFiles
	PermissionReadMessageHistory
	PermissionMentionEveryone
	PermissionUseExternalEmojis
	PermissionViewGuildInsights
	PermissionConnect
	PermissionSpeak
	PermissionMuteMembers
	PermissionDeafenMembers
	PermissionMoveMembers
	PermissionUseVAD
	PermissionChangeNickname
	PermissionManageNicknames
	PermissionManageRoles
	PermissionManageWebhooks
	PermissionManageEmojis
)

// PermissionsAll is every bit set, the result of owner and administrator
// short-circuits.
const PermissionsAll = ^Permissions(0)

// PermissionsNone is the empty bitset.
const PermissionsNone Permissions = 0

// Has reports whether every bit of mask is present.
func (p Permissions) Has(mask Permissions) bool {
	return p&mask == mask
}

// HasAny reports whether at least one bit of mask is present.
func (p Permissions) HasAny(mask Permissions) bool {
	return p&mask != 0
}

func (p Permissions) MarshalJSON() ([]byte, error) {
	return Snowflake(p).MarshalJSON()
}

func (p *Permissions) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	var s Snowflake
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*p = Permissions(s)
	return nil
}
