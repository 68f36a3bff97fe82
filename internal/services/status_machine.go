package services

import (
	"fmt"
	"strings"
	"time"

	"tasklife/internal/models"
)

type Action string

const (
	ActionStart   Action = "start"
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionResume  Action = "resume"
)

func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionSubmit, ActionApprove, ActionReject, ActionResume:
		return true
	}
	return false
}

type transitionRule struct {
	to             models.TaskStatus
	permitted      func(RoleSet) bool
	requiresReason bool
}

func assigneeOnly(r RoleSet) bool { return r.IsAssignee }
func reviewerOrAdmin(r RoleSet) bool { return r.CanReview() }

// transitionTable is the single source of truth for which edges exist and
// who may walk them. Reviewed has no outgoing edges.
var transitionTable = map[models.TaskStatus]map[Action]transitionRule{
	models.StatusAssigned: {
		ActionStart: {to: models.StatusInProgress, permitted: assigneeOnly},
	},
	models.StatusInProgress: {
		ActionSubmit: {to: models.StatusPendingReview, permitted: assigneeOnly},
	},
	models.StatusPendingReview: {
		ActionApprove: {to: models.StatusReviewed, permitted: reviewerOrAdmin},
		ActionReject:  {to: models.StatusReopened, permitted: reviewerOrAdmin, requiresReason: true},
	},
	models.StatusReopened: {
		ActionResume: {to: models.StatusInProgress, permitted: assigneeOnly},
	},
}

// Transition validates and applies a single status change. It is a pure
// function of its arguments: no I/O, no retries, no ambient clock. On
// success it returns a copy of the task with the new status and
// LastStatusChangeAt set to now.
func Transition(task models.Task, roles RoleSet, action Action, reason string, now time.Time) (models.Task, error) {
	if task.Status.Terminal() {
		return task, fmt.Errorf("%w: task is in terminal status %q", ErrInvalidTransition, task.Status)
	}
	rules, ok := transitionTable[task.Status]
	if !ok {
		return task, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, task.Status)
	}
	rule, ok := rules[action]
	if !ok {
		return task, fmt.Errorf("%w: action %q is not valid from status %q", ErrInvalidTransition, action, task.Status)
	}
	if !rule.permitted(roles) {
		return task, fmt.Errorf("%w: action %q requires a role the actor does not hold", ErrUnauthorized, action)
	}
	if rule.requiresReason && strings.TrimSpace(reason) == "" {
		return task, fmt.Errorf("%w: action %q requires a non-empty reason", ErrValidation, action)
	}

	task.Status = rule.to
	task.Assignment.LastStatusChangeAt = now
	return task, nil
}
