package domain

import "strings"

// Role is the closed set of account roles.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps a case-insensitive string onto a Role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Capability names an action that needs an authorization decision.
type Capability int

const (
	// CapStartPersonal: open a personal conversation the actor takes part in.
	CapStartPersonal Capability = iota + 1
	// CapManageMembers: add or remove group members.
	CapManageMembers
	// CapViewConversation: read a conversation and its history.
	CapViewConversation
	// CapPostMessage: append messages and mark them read.
	CapPostMessage
)

// Can is the single authorization decision point. owner is true when the
// actor owns or participates in the target resource: the creator of a group
// for CapManageMembers, a member for view/post, one of the pair for
// CapStartPersonal.
func Can(role Role, owner bool, c Capability) bool {
	if !role.Valid() {
		return false
	}
	switch c {
	case CapManageMembers:
		return owner || role == RoleAdmin
	case CapStartPersonal, CapViewConversation, CapPostMessage:
		return owner
	}
	return false
}
