package services

import (
	"tasklife/internal/models"

	"github.com/gofrs/uuid"
)

// RoleSet is the capability set an actor holds against one task. Roles are
// additive: an admin who is also the assignee holds both.
type RoleSet struct {
	IsAssignee bool
	IsReviewer bool
	IsAdmin    bool
}

// CanReview reports whether the actor may approve or reject. Admin standing
// substitutes for the reviewer here, but never for assignee-only actions.
func (r RoleSet) CanReview() bool {
	return r.IsReviewer || r.IsAdmin
}

// ResolveRoles maps (task, actor, membership) to a RoleSet. A nil membership
// means the actor has no standing in the task's group.
func ResolveRoles(task *models.Task, userID uuid.UUID, membership *models.GroupMembership) RoleSet {
	roles := RoleSet{
		IsAssignee: task.IsAssignee(userID),
		IsReviewer: task.IsReviewer(userID),
	}
	if task.GroupID != nil && membership != nil &&
		membership.GroupID == *task.GroupID && membership.UserID == userID {
		roles.IsAdmin = membership.IsAdmin()
	}
	return roles
}
