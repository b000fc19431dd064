package groups

import "messaging-service/internal/models"

// Capability is a group action gated by role rank.
type Capability int

const (
	// CapPostMessage and CapReadHistory belong to every member.
	CapPostMessage Capability = iota
	CapReadHistory
	// CapManageMembers (add/remove) needs moderator or better.
	CapManageMembers
	// CapManageGroup (update/delete settings) and CapChangeRoles are
	// admin only.
	CapManageGroup
	CapChangeRoles
)

// requiredRole maps each capability to the minimum role that grants it.
func requiredRole(c Capability) models.Role {
	switch c {
	case CapManageMembers:
		return models.RoleModerator
	case CapManageGroup, CapChangeRoles:
		return models.RoleAdmin
	default:
		return models.RoleMember
	}
}
