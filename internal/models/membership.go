package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type GroupRole string

const (
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
)

// GroupMembership is read-only inside this service; membership management
// lives in the group collaborator. Every group keeps at least one admin
// (its creator) from creation onward.
type GroupMembership struct {
	GroupID  uuid.UUID `json:"group_id" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	Role     GroupRole `json:"role" gorm:"not null;default:'member'"`
	JoinedAt time.Time `json:"joined_at"`
}

func (m *GroupMembership) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}
