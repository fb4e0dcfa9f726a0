package main

import (
	"time"

	"clubhub-backend/internal/domain"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Club     string `json:"club"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// AssignClubRequest moves an account; an empty club detaches it.
type AssignClubRequest struct {
	Club string `json:"club"`
}

type CreateEventRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Date        string   `json:"date" binding:"required"` // RFC3339 or "YYYY-MM-DD"
	Capacity    int      `json:"capacity"`
	Club        string   `json:"club"`
	Invitees    []string `json:"invitees"`
}

// SearchRequest is the query of GET /api/events/search.
type SearchRequest struct {
	Keyword   string `form:"keyword"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
	// Role narrows to events the caller organizes or attends.
	Role string `form:"role"`
	Club string `form:"club"`
}

type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	AssignedTo  string `json:"assigned_to" binding:"required"`
	Credits     int    `json:"credits"`
	Priority    string `json:"priority"`
	IsGlobal    bool   `json:"is_global"`
}

type UpdateTaskStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Verify bool   `json:"verify"`
}

type TaskListRequest struct {
	// Role is "assignee" or "creator"; empty lists everything visible.
	Role    string `form:"role"`
	Keyword string `form:"keyword"`
}

// TaskResponse exposes the task with the legacy status and is_verified pair.
type TaskResponse struct {
	ID          string            `json:"id"`
	CreatedBy   string            `json:"created_by"`
	AssignedTo  string            `json:"assigned_to"`
	Club        domain.Club       `json:"club,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Credits     int               `json:"credits"`
	Priority    domain.Priority   `json:"priority"`
	Status      domain.TaskStatus `json:"status"`
	IsVerified  bool              `json:"is_verified"`
	IsGlobal    bool              `json:"is_global"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func newTaskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		Club:        t.Club,
		Title:       t.Title,
		Description: t.Description,
		Credits:     t.Credits,
		Priority:    t.Priority,
		Status:      t.Status(),
		IsVerified:  t.IsVerified(),
		IsGlobal:    t.IsGlobal,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type CreditHistoryResponse struct {
	UserID      string               `json:"user_id"`
	CreditScore int                  `json:"credit_score"`
	Entries     []domain.CreditEntry `json:"entries"`
}
