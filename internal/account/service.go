// Package account administers user accounts: sign-up, login, role and club
// changes. Every change made on behalf of another account goes through the
// policy.
package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"clubhub-backend/internal/apperrors"
	"clubhub-backend/internal/domain"
	"clubhub-backend/internal/policy"
	"clubhub-backend/internal/role"
	"clubhub-backend/internal/store"
)

const minPasswordLength = 8

type Service struct {
	users       store.Users
	log         *logrus.Entry
	now         func() time.Time
	newID       func() string
	hashCost    int
	maxAttempts uint
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

func WithMaxAttempts(n uint) Option {
	return func(s *Service) { s.maxAttempts = n }
}

func NewService(users store.Users, log *logrus.Entry, opts ...Option) *Service {
	s := &Service{
		users:       users,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		hashCost:    bcrypt.DefaultCost,
		maxAttempts: store.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register creates a self-service account. New accounts are plain users
// without a club.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	const op = "account.Service.Register"

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if len(in.Password) < minPasswordLength {
		return domain.User{}, apperrors.Validation("password", "password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return domain.User{}, apperrors.Validation("password", err.Error())
	}

	u, err := s.insert(ctx, domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: string(hash),
		Role:         role.User,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.log.WithFields(logrus.Fields{"operation": op, "user_id": u.ID}).Info("account registered")
	return u, nil
}

// Authenticate checks the credentials and returns the account. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	const op = "account.Service.Authenticate"

	rec, err := s.users.FindUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, apperrors.Unauthorized("invalid credentials")
		}
		return domain.User{}, store.Translate("user", email, err)
	}
	if rec.Value.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(rec.Value.PasswordHash), []byte(password)) != nil {
		s.log.WithFields(logrus.Fields{"operation": op, "user_id": rec.Value.ID}).Debug("password mismatch")
		return domain.User{}, apperrors.Unauthorized("invalid credentials")
	}
	return rec.Value, nil
}

type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     string
	Club     string
}

// Create provisions an account on behalf of actor. Admins create accounts in
// their own club and only below their own tier.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (domain.User, error) {
	const op = "account.Service.Create"
	log := s.log.WithFields(logrus.Fields{"operation": op, "actor_id": actor.ID})

	if actor.Anonymous() {
		return domain.User{}, apperrors.Unauthorized("actor is required")
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	r := role.User
	if strings.TrimSpace(in.Role) != "" {
		if r, err = role.Parse(in.Role); err != nil {
			return domain.User{}, apperrors.Validation("role", err.Error())
		}
	}
	club, err := domain.ParseClub(in.Club)
	if err != nil {
		return domain.User{}, apperrors.Validation("club", err.Error())
	}
	if club == domain.NoClub && actor.Role == role.Admin {
		club = actor.Club
	}

	target := policy.Target{
		Kind:             policy.TargetUser,
		Club:             club,
		RequestedRole:    r,
		RequestedClub:    club,
		HasRequestedClub: true,
	}
	if err := policy.Authorize(actor, policy.ActionCreateAccount, target).Err(policy.ActionCreateAccount); err != nil {
		log.WithError(err).Debug("create account denied")
		return domain.User{}, err
	}

	u := domain.User{Email: email, Name: strings.TrimSpace(in.Name), Role: r, Club: club}
	if in.Password != "" {
		if len(in.Password) < minPasswordLength {
			return domain.User{}, apperrors.Validation("password", "password must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
		if err != nil {
			return domain.User{}, apperrors.Validation("password", err.Error())
		}
		u.PasswordHash = string(hash)
	}

	created, err := s.insert(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	log.WithFields(logrus.Fields{"user_id": created.ID, "role": created.Role, "club": created.Club}).Info("account created")
	return created, nil
}

// Get returns the account if actor may read it.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id string) (domain.User, error) {
	if actor.Anonymous() {
		return domain.User{}, apperrors.Unauthorized("actor is required")
	}
	rec, err := s.users.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, store.Translate("user", id, err)
	}
	if err := policy.Authorize(actor, policy.ActionRead, policy.UserTarget(rec.Value)).Err(policy.ActionRead); err != nil {
		return domain.User{}, err
	}
	return rec.Value, nil
}

// UpdateRole changes another account's role.
func (s *Service) UpdateRole(ctx context.Context, actor domain.Actor, id, requested string) (domain.User, error) {
	r, err := role.Parse(requested)
	if err != nil {
		return domain.User{}, apperrors.Validation("role", err.Error())
	}
	return s.modify(ctx, "account.Service.UpdateRole", actor, id, func(target *policy.Target, u *domain.User) bool {
		target.RequestedRole = r
		if u.Role == r {
			return false
		}
		u.Role = r
		return true
	})
}

// AssignClub moves another account to club. An empty club detaches it.
func (s *Service) AssignClub(ctx context.Context, actor domain.Actor, id, requested string) (domain.User, error) {
	club, err := domain.ParseClub(requested)
	if err != nil {
		return domain.User{}, apperrors.Validation("club", err.Error())
	}
	return s.modify(ctx, "account.Service.AssignClub", actor, id, func(target *policy.Target, u *domain.User) bool {
		target.RequestedClub = club
		target.HasRequestedClub = true
		if u.Club == club {
			return false
		}
		u.Club = club
		return true
	})
}

// BootstrapSuperadmin makes sure the account behind email exists and is a
// superadmin. It runs outside the policy and is meant for startup only.
func (s *Service) BootstrapSuperadmin(ctx context.Context, email string) (domain.User, error) {
	const op = "account.Service.BootstrapSuperadmin"
	log := s.log.WithField("operation", op)

	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}

	u, err := store.RetryOnConflict(ctx, s.maxAttempts, func() (domain.User, error) {
		rec, err := s.users.FindUserByEmail(ctx, email)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return s.insert(ctx, domain.User{Email: email, Name: "superadmin", Role: role.Superadmin})
		case err != nil:
			return domain.User{}, err
		case rec.Value.Role == role.Superadmin:
			return rec.Value, nil
		}
		next := rec.Value
		next.Role = role.Superadmin
		next.Club = domain.NoClub
		next.UpdatedAt = s.now()
		out, err := s.users.CompareAndSwapUser(ctx, next.ID, rec.Version, next)
		if err != nil {
			return domain.User{}, err
		}
		return out.Value, nil
	})
	if err != nil {
		return domain.User{}, store.Translate("user", email, err)
	}
	log.WithField("user_id", u.ID).Info("superadmin ready")
	return u, nil
}

func (s *Service) modify(
	ctx context.Context,
	op string,
	actor domain.Actor,
	id string,
	apply func(*policy.Target, *domain.User) bool,
) (domain.User, error) {
	log := s.log.WithFields(logrus.Fields{"operation": op, "user_id": id, "actor_id": actor.ID})
	if actor.Anonymous() {
		return domain.User{}, apperrors.Unauthorized("actor is required")
	}

	u, err := store.RetryOnConflict(ctx, s.maxAttempts, func() (domain.User, error) {
		rec, err := s.users.GetUser(ctx, id)
		if err != nil {
			return domain.User{}, err
		}
		next := rec.Value
		target := policy.UserTarget(rec.Value)
		changed := apply(&target, &next)
		if err := policy.Authorize(actor, policy.ActionManageAccount, target).Err(policy.ActionManageAccount); err != nil {
			return domain.User{}, err
		}
		if !changed {
			return rec.Value, nil
		}
		next.UpdatedAt = s.now()
		out, err := s.users.CompareAndSwapUser(ctx, rec.Value.ID, rec.Version, next)
		if err != nil {
			return domain.User{}, err
		}
		return out.Value, nil
	})
	if err != nil {
		log.WithError(err).Debug("account change rejected")
		return domain.User{}, store.Translate("user", id, err)
	}
	log.WithFields(logrus.Fields{"role": u.Role, "club": u.Club}).Info("account updated")
	return u, nil
}

func (s *Service) insert(ctx context.Context, u domain.User) (domain.User, error) {
	now := s.now()
	u.ID = s.newID()
	u.CreatedAt = now
	u.UpdatedAt = now

	rec, err := s.users.CreateUser(ctx, u)
	if errors.Is(err, store.ErrDuplicate) {
		return domain.User{}, apperrors.Conflict(apperrors.ReasonEmailTaken, "email is already registered")
	}
	if err != nil {
		return domain.User{}, store.Translate("user", u.ID, err)
	}
	return rec.Value, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", apperrors.Validation("email", "a plain email address is required")
	}
	return strings.ToLower(addr.Address), nil
}
