package domain

import (
	"context"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already exists")
	ErrEmailTaken      = errors.New("email already exists")
	ErrInvalidUsername = errors.New("username must be 3 to 32 characters of letters, digits, '.', '_' or '-'")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrWeakPassword    = errors.New("password must be at least 8 characters")
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	maxPasswordLength = 72
)

// User aggregate root. The password is only ever held as a bcrypt hash.
type User struct {
	ID           models.ID
	Username     string
	Email        string
	PasswordHash string
	Timestamps   models.Timestamps
}

// Registration is the validated, normalized input of a sign up
type Registration struct {
	Username string
	Email    string
	Password string
}

// NewRegistration trims and lower-cases the identity fields and checks their format
func NewRegistration(username, email, password string) (Registration, error) {
	reg := Registration{
		Username: strings.TrimSpace(username),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
	}

	if !validUsername(reg.Username) {
		return Registration{}, ErrInvalidUsername
	}

	addr, err := mail.ParseAddress(reg.Email)
	if err != nil || addr.Address != reg.Email {
		return Registration{}, ErrInvalidEmail
	}

	if utf8.RuneCountInString(password) < minPasswordLength || len(password) > maxPasswordLength {
		return Registration{}, ErrWeakPassword
	}

	return reg, nil
}

func validUsername(username string) bool {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// HashPassword hashes password with bcrypt at cost
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// CreateUser factory method
func CreateUser(id models.ID, username, email, passwordHash string) (*User, error) {
	if id.IsEmpty() {
		return nil, errors.New("user ID is required")
	}
	if passwordHash == "" {
		return nil, errors.New("password hash is required")
	}

	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Timestamps:   models.NewTimestamps(),
	}, nil
}

// RegisteredEvent builds the user.registered notice
func (u *User) RegisteredEvent(role string, quota Quota) *events.Event {
	return events.NewEvent(u.ID, events.UserRegisteredEvent, UserRegisteredData{
		UserID:     u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       role,
		QuotaLimit: quota.Limit,
	})
}

// Event Data Structures
type UserRegisteredData struct {
	UserID     models.ID `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	QuotaLimit int64     `json:"quota_limit"`
}

type UserRegistrationFailedData struct {
	UserID   models.ID `json:"user_id,omitempty"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Reason   string    `json:"reason"`
}

// UserRepository interface
type UserRepository interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *User) error
	Delete(ctx context.Context, id models.ID) error
}
