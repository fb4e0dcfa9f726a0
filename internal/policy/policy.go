// Package policy decides whether an actor may perform an action on a target.
//
// The decision table is evaluated top to bottom and the first matching rule
// wins:
//
//  1. superadmin is allowed everything except managing its own account;
//  2. admin is confined to its own club and may only grant user or member;
//  3. admin may not modify another admin or superadmin;
//  4. member may create events, move its own assigned tasks and join or
//     leave events;
//  5. user may read and join published events;
//  6. anything else is denied.
//
// Authorize never fails; callers must handle the Deny verdict.
package policy

import (
	"fmt"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/role"
)

// Action is an operation subject to authorization.
type Action int

const (
	ActionUnspecified Action = iota
	ActionRead
	ActionCreateEvent
	ActionApproveEvent
	ActionDeleteEvent
	ActionParticipate
	ActionUnregister
	ActionCreateTask
	// ActionUpdateOwnTaskStatus is the assignee moving its own task forward.
	ActionUpdateOwnTaskStatus
	// ActionManageTask is a privileged status correction on any task.
	ActionManageTask
	ActionVerifyTask
	ActionDeleteTask
	ActionCreateAccount
	// ActionManageAccount changes the role or club of another account.
	ActionManageAccount
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionCreateEvent:
		return "create-event"
	case ActionApproveEvent:
		return "approve-event"
	case ActionDeleteEvent:
		return "delete-event"
	case ActionParticipate:
		return "participate"
	case ActionUnregister:
		return "unregister"
	case ActionCreateTask:
		return "create-task"
	case ActionUpdateOwnTaskStatus:
		return "update-own-task-status"
	case ActionManageTask:
		return "manage-task"
	case ActionVerifyTask:
		return "verify-task"
	case ActionDeleteTask:
		return "delete-task"
	case ActionCreateAccount:
		return "create-account"
	case ActionManageAccount:
		return "manage-account"
	default:
		return "unspecified"
	}
}

// selfService actions act on the caller's own participation or assignment
// and are not confined to the caller's club.
func (a Action) selfService() bool {
	switch a {
	case ActionRead, ActionCreateEvent, ActionParticipate, ActionUnregister, ActionUpdateOwnTaskStatus:
		return true
	default:
		return false
	}
}

type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetUser
	TargetEvent
	TargetTask
)

// Target describes the entity an action is applied to.
type Target struct {
	Kind TargetKind
	ID   string
	Club domain.Club

	// Role is the current role of a user target.
	Role role.Role
	// RequestedRole is the role an account action wants to set, if any.
	RequestedRole role.Role
	// RequestedClub is the club an account action wants to set.
	RequestedClub    domain.Club
	HasRequestedClub bool

	AssigneeID string
	Global     bool
	Published  bool
}

// UserTarget builds the target for an existing account.
func UserTarget(u domain.User) Target {
	return Target{Kind: TargetUser, ID: u.ID, Club: u.Club, Role: u.Role}
}

func EventTarget(e domain.Event) Target {
	return Target{Kind: TargetEvent, ID: e.ID, Club: e.Club, Published: e.Published}
}

func TaskTarget(t domain.Task) Target {
	return Target{Kind: TargetTask, ID: t.ID, Club: t.Club, AssigneeID: t.AssignedTo, Global: t.IsGlobal}
}

// Verdict is the outcome of Authorize.
type Verdict struct {
	Allowed bool
	Reason  apperrors.Reason
}

func Allow() Verdict {
	return Verdict{Allowed: true}
}

func Deny(reason apperrors.Reason) Verdict {
	return Verdict{Reason: reason}
}

// Err converts a Deny into a Forbidden error and an Allow into nil.
func (v Verdict) Err(action Action) error {
	if v.Allowed {
		return nil
	}
	return apperrors.Forbidden(v.Reason, fmt.Sprintf("%s denied: %s", action, v.Reason))
}

// Authorize evaluates the decision table.
func Authorize(actor domain.Actor, action Action, target Target) Verdict {
	if actor.Anonymous() || action == ActionUnspecified {
		return Deny(apperrors.ReasonNoMatchingRule)
	}

	switch actor.Role {
	case role.Superadmin:
		if action == ActionManageAccount && target.Kind == TargetUser && target.ID == actor.ID {
			return Deny(apperrors.ReasonSelfModification)
		}
		return Allow()
	case role.Admin:
		return authorizeAdmin(actor, action, target)
	case role.Member:
		return authorizeMember(actor, action, target)
	case role.User:
		return authorizeUser(action, target)
	default:
		return Deny(apperrors.ReasonNoMatchingRule)
	}
}

func authorizeAdmin(actor domain.Actor, action Action, target Target) Verdict {
	if action.selfService() {
		return authorizeMember(actor, action, target)
	}

	if target.Global {
		return Deny(apperrors.ReasonGlobalTask)
	}
	if target.Kind != TargetNone && (actor.Club == domain.NoClub || target.Club != actor.Club) {
		return Deny(apperrors.ReasonOutOfClub)
	}

	switch action {
	case ActionCreateAccount, ActionManageAccount:
		if target.RequestedRole != "" && role.AtLeast(target.RequestedRole, role.Admin) {
			return Deny(apperrors.ReasonRoleEscalation)
		}
		if target.HasRequestedClub && target.RequestedClub != domain.NoClub && target.RequestedClub != actor.Club {
			return Deny(apperrors.ReasonOutOfClub)
		}
		if action == ActionManageAccount && role.IsPrivileged(target.Role) {
			return Deny(apperrors.ReasonProtectedRole)
		}
		return Allow()
	case ActionCreateTask, ActionManageTask, ActionVerifyTask, ActionDeleteTask, ActionDeleteEvent:
		return Allow()
	case ActionApproveEvent:
		return Deny(apperrors.ReasonInsufficientRole)
	default:
		return Deny(apperrors.ReasonNoMatchingRule)
	}
}

func authorizeMember(actor domain.Actor, action Action, target Target) Verdict {
	switch action {
	case ActionRead, ActionCreateEvent, ActionParticipate, ActionUnregister:
		return Allow()
	case ActionUpdateOwnTaskStatus:
		if target.AssigneeID != actor.ID {
			return Deny(apperrors.ReasonNotAssignee)
		}
		return Allow()
	default:
		return Deny(apperrors.ReasonInsufficientRole)
	}
}

func authorizeUser(action Action, target Target) Verdict {
	switch action {
	case ActionRead:
		return Allow()
	case ActionParticipate:
		if !target.Published {
			return Deny(apperrors.ReasonNotPublished)
		}
		return Allow()
	default:
		return Deny(apperrors.ReasonInsufficientRole)
	}
}
