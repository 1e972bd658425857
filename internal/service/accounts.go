package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"letDrone/internal/apperrors"
	"letDrone/internal/db"
	"letDrone/internal/oauth"
	"letDrone/internal/policy"
	"letDrone/models"
	"letDrone/repository"
)

const (
	MinPasswordLength = 8
	MaxUsernameLength = 150
)

// TokenIssuer obtains tokens from the authorization server.
type TokenIssuer interface {
	PasswordGrant(ctx context.Context, username, password string) (*oauth.Response, error)
}

// AccountService manages user accounts and self-registration.
type AccountService struct {
	Users  repository.UserRepositoryI
	Tokens TokenIssuer
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Registration is the body of POST /register/.
type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// Register creates a user with an empty patient profile, then logs the new
// user in with a password grant whose upstream answer is returned as is.
func (s *AccountService) Register(ctx context.Context, in Registration) (*oauth.Response, error) {
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	u, p, err := s.Users.CreatePatientAccount(ctx, &models.User{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
	})
	if db.IsUniqueViolation(err) {
		return nil, apperrors.Validation("a user with that username already exists")
	}
	if err != nil {
		return nil, internalErr("create account", err)
	}
	log.Info().Int64("user_id", u.ID).Int64("patient_id", p.ID).Msg("patient registered")
	return s.Tokens.PasswordGrant(ctx, username, in.Password)
}

func (s *AccountService) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", apperrors.Validation("password must be at least %d characters", MinPasswordLength)
	}
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		// bcrypt rejects passwords longer than 72 bytes.
		return "", apperrors.Validation("password is not acceptable: %v", err)
	}
	return string(b), nil
}

func validateUsername(username string) error {
	if username == "" {
		return apperrors.Validation("username is required")
	}
	if len(username) > MaxUsernameLength {
		return apperrors.Validation("username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.Validation("enter a valid email address")
	}
	return nil
}

func (s *AccountService) List(ctx context.Context, a *policy.Actor, page Page) ([]models.User, error) {
	if err := policy.Check(a, policy.Users, policy.List, false); err != nil {
		return nil, err
	}
	users, err := s.Users.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, internalErr("list users", err)
	}
	return users, nil
}

func (s *AccountService) Get(ctx context.Context, a *policy.Actor, id int64) (*models.User, error) {
	if err := authorize(a, policy.Users, policy.Read, a.IsUser(id), "user"); err != nil {
		return nil, err
	}
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get user", err)
	}
	if u == nil {
		return nil, apperrors.NotFound("user")
	}
	return u, nil
}

// UserPatch holds the account fields a user may change on themselves.
type UserPatch struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (s *AccountService) Update(ctx context.Context, a *policy.Actor, id int64, in UserPatch) (*models.User, error) {
	if err := authorize(a, policy.Users, policy.Update, a.IsUser(id), "user"); err != nil {
		return nil, err
	}
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("get user", err)
	}
	if u == nil {
		return nil, apperrors.NotFound("user")
	}
	if in.Username != nil {
		name := strings.TrimSpace(*in.Username)
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		u.Username = name
	}
	if in.Email != nil {
		if err := validateEmail(*in.Email); err != nil {
			return nil, err
		}
		u.Email = strings.TrimSpace(*in.Email)
	}
	if in.Password != nil {
		if u.PasswordHash, err = s.hash(*in.Password); err != nil {
			return nil, err
		}
	}
	err = s.Users.Update(ctx, u)
	if db.IsUniqueViolation(err) {
		return nil, apperrors.Validation("a user with that username already exists")
	}
	if err != nil {
		return nil, internalErr("update user", err)
	}
	return u, nil
}

// Delete removes the account with its profiles, prescriptions and comments.
func (s *AccountService) Delete(ctx context.Context, a *policy.Actor, id int64) error {
	if err := policy.Check(a, policy.Users, policy.Delete, a.IsUser(id)); err != nil {
		return err
	}
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return internalErr("get user", err)
	}
	if u == nil {
		return apperrors.NotFound("user")
	}
	if err := s.Users.Delete(ctx, id); err != nil {
		return internalErr("delete user", err)
	}
	log.Info().Int64("user_id", id).Int64("by", a.User.ID).Msg("user deleted")
	return nil
}
