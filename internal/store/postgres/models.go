package postgres

import (
	"time"

	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/role"
)

type userModel struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string
	Role         string `gorm:"type:varchar(16);not null"`
	Club         string `gorm:"type:varchar(16);index"`
	CreditScore  int    `gorm:"not null;default:0"`
	Version      int64  `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userModel) TableName() string { return "users" }

func userModelFromDomain(u domain.User, version int64) userModel {
	return userModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Club:         string(u.Club),
		CreditScore:  u.CreditScore,
		Version:      version,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (m userModel) toDomain() domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         role.Role(m.Role),
		Club:         domain.Club(m.Club),
		CreditScore:  m.CreditScore,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type eventModel struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	CreatorID    string    `gorm:"type:uuid;index;not null"`
	Club         string    `gorm:"type:varchar(16);index"`
	Title        string    `gorm:"not null"`
	Description  string
	Location     string
	Date         time.Time `gorm:"not null"`
	Capacity     int       `gorm:"not null"`
	Published    bool      `gorm:"not null;default:false"`
	Approvals    []string  `gorm:"type:jsonb;serializer:json"`
	Participants []string  `gorm:"type:jsonb;serializer:json"`
	Version      int64     `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (eventModel) TableName() string { return "events" }

func eventModelFromDomain(e domain.Event, version int64) eventModel {
	approvals := e.Approvals
	if approvals == nil {
		approvals = []string{}
	}
	participants := e.Participants
	if participants == nil {
		participants = []string{}
	}
	return eventModel{
		ID:           e.ID,
		CreatorID:    e.CreatorID,
		Club:         string(e.Club),
		Title:        e.Title,
		Description:  e.Description,
		Location:     e.Location,
		Date:         e.Date,
		Capacity:     e.Capacity,
		Published:    e.Published,
		Approvals:    approvals,
		Participants: participants,
		Version:      version,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func (m eventModel) toDomain() domain.Event {
	return domain.Event{
		ID:           m.ID,
		CreatorID:    m.CreatorID,
		Club:         domain.Club(m.Club),
		Title:        m.Title,
		Description:  m.Description,
		Location:     m.Location,
		Date:         m.Date.UTC(),
		Capacity:     m.Capacity,
		Published:    m.Published,
		Approvals:    m.Approvals,
		Participants: m.Participants,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

// taskModel keeps the legacy status and is_verified columns; the tagged
// state is rebuilt from them on read.
type taskModel struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	CreatedBy   string    `gorm:"type:uuid;index;not null"`
	AssignedTo  string    `gorm:"type:uuid;index;not null"`
	Club        string    `gorm:"type:varchar(16);index"`
	Title       string    `gorm:"not null"`
	Description string
	Credits     int       `gorm:"not null"`
	Priority    string    `gorm:"type:varchar(8);not null"`
	Status      string    `gorm:"type:varchar(16);not null"`
	IsVerified  bool      `gorm:"not null;default:false"`
	IsGlobal    bool      `gorm:"not null;default:false"`
	Version     int64     `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskModel) TableName() string { return "tasks" }

func taskModelFromDomain(t domain.Task, version int64) taskModel {
	return taskModel{
		ID:          t.ID,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		Club:        string(t.Club),
		Title:       t.Title,
		Description: t.Description,
		Credits:     t.Credits,
		Priority:    string(t.Priority),
		Status:      string(t.Status()),
		IsVerified:  t.IsVerified(),
		IsGlobal:    t.IsGlobal,
		Version:     version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (m taskModel) toDomain() (domain.Task, error) {
	state, err := domain.StateFromLegacy(domain.TaskStatus(m.Status), m.IsVerified)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          m.ID,
		CreatedBy:   m.CreatedBy,
		AssignedTo:  m.AssignedTo,
		Club:        domain.Club(m.Club),
		Title:       m.Title,
		Description: m.Description,
		Credits:     m.Credits,
		Priority:    domain.Priority(m.Priority),
		State:       state,
		IsGlobal:    m.IsGlobal,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}, nil
}

type creditEntryModel struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	UserID    string    `gorm:"type:uuid;index;not null"`
	TaskID    string    `gorm:"type:uuid;uniqueIndex;not null"`
	Amount    int       `gorm:"not null"`
	CreatedAt time.Time
}

func (creditEntryModel) TableName() string { return "credit_entries" }

func (m creditEntryModel) toDomain() domain.CreditEntry {
	return domain.CreditEntry{
		ID:        m.ID,
		UserID:    m.UserID,
		TaskID:    m.TaskID,
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt.UTC(),
	}
}
