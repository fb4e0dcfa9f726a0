// Package domain holds the governed entities: users, events and tasks.
package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"clubhub-backend/internal/role"
)

// Club is the organizational scoping tag. The empty club means "no club".
type Club string

const (
	NoClub       Club = ""
	ClubACM      Club = "ACM"
	ClubIEEE     Club = "IEEE"
	ClubGDSC     Club = "GDSC"
	ClubCSI      Club = "CSI"
	ClubRobotics Club = "ROBOTICS"
)

// Clubs is the fixed set of clubs.
var Clubs = []Club{ClubACM, ClubIEEE, ClubGDSC, ClubCSI, ClubRobotics}

// ParseClub normalizes s. An empty string yields NoClub.
func ParseClub(s string) (Club, error) {
	c := Club(strings.ToUpper(strings.TrimSpace(s)))
	if c == NoClub || slices.Contains(Clubs, c) {
		return c, nil
	}
	return NoClub, fmt.Errorf("unknown club %q", s)
}

// Actor is the caller of every policy and workflow operation.
type Actor struct {
	ID   string
	Role role.Role
	Club Club
}

// Anonymous reports whether the actor carries no identity.
func (a Actor) Anonymous() bool {
	return strings.TrimSpace(a.ID) == "" || !a.Role.Valid()
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	// PasswordHash is a bcrypt hash; empty for accounts that cannot log in.
	PasswordHash string    `json:"-"`
	Role         role.Role `json:"role"`
	Club         Club      `json:"club,omitempty"`
	CreditScore  int       `json:"credit_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Actor returns the identity the user acts with.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, Club: u.Club}
}

// Event is a club event with a bounded participant list.
type Event struct {
	ID           string    `json:"id"`
	CreatorID    string    `json:"creator_id"`
	Club         Club      `json:"club,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	Date         time.Time `json:"date"`
	Capacity     int       `json:"capacity"`
	Published    bool      `json:"is_published"`
	Approvals    []string  `json:"approvals"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (e Event) HasParticipant(userID string) bool {
	return slices.Contains(e.Participants, userID)
}

func (e Event) HasApproval(userID string) bool {
	return slices.Contains(e.Approvals, userID)
}

// Full reports whether no seat is left.
func (e Event) Full() bool {
	return len(e.Participants) >= e.Capacity
}

// Clone returns a copy that shares no slices with e.
func (e Event) Clone() Event {
	e.Approvals = slices.Clone(e.Approvals)
	e.Participants = slices.Clone(e.Participants)
	return e
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes s; empty defaults to medium.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// TaskStatus is the legacy status field exposed at the boundary.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// ParseTaskStatus validates s.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// TaskState is the internal tagged state. Verified is only reachable from
// Completed and is terminal.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in-progress"
	TaskCompleted  TaskState = "completed"
	TaskVerified   TaskState = "verified"
)

// StateOf maps a legacy status onto its unverified state.
func StateOf(status TaskStatus) TaskState {
	switch status {
	case StatusInProgress:
		return TaskInProgress
	case StatusCompleted:
		return TaskCompleted
	default:
		return TaskPending
	}
}

// StateFromLegacy rebuilds the tagged state from the two boundary fields and
// rejects combinations that cannot exist.
func StateFromLegacy(status TaskStatus, verified bool) (TaskState, error) {
	if verified {
		if status != StatusCompleted {
			return "", fmt.Errorf("task cannot be verified in status %q", status)
		}
		return TaskVerified, nil
	}
	if _, err := ParseTaskStatus(string(status)); err != nil {
		return "", err
	}
	return StateOf(status), nil
}

type Task struct {
	ID          string
	CreatedBy   string
	AssignedTo  string
	Club        Club
	Title       string
	Description string
	Credits     int
	Priority    Priority
	State       TaskState
	IsGlobal    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status is the legacy status; a verified task reports completed.
func (t Task) Status() TaskStatus {
	switch t.State {
	case TaskInProgress:
		return StatusInProgress
	case TaskCompleted, TaskVerified:
		return StatusCompleted
	default:
		return StatusPending
	}
}

func (t Task) IsVerified() bool {
	return t.State == TaskVerified
}

const (
	MinTaskCredits = 1
	MaxTaskCredits = 100
)

// CreditEntry is one append-only adjustment of a user's credit score.
type CreditEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id"`
	Amount    int       `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
