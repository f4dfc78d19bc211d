package models

import (
	"regexp"
	"strings"
	"time"

	id "unionregistry/pkg/domain"
	dErrors "unionregistry/pkg/domain-errors"
	"unionregistry/pkg/email"
)

// Role distinguishes the association admin from dealer logins.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleDealer Role = "DEALER"
)

// AdminUsername is the single bootstrap admin account.
const AdminUsername = "admin"

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores bytes beyond 72
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,63}$`)

// Account is a login for the admin or for one dealer's profile.
//
// Invariants:
//   - Username is unique and lower-case
//   - RoleDealer accounts carry a DealerID; at most one account per dealer
//   - TOTPEnabled implies a non-empty TOTPSecret
type Account struct {
	ID                id.ProfileID `json:"id"`
	Username          string       `json:"username"`
	Role              Role         `json:"role"`
	DealerID          id.DealerID  `json:"dealer_id"`
	PasswordHash      string       `json:"-"`
	Email             string       `json:"email,omitempty"`
	Mobile            string       `json:"mobile,omitempty"`
	TOTPSecret        string       `json:"-"`
	TOTPEnabled       bool         `json:"totp_enabled"`
	TemporaryPassword bool         `json:"temporary_password"`
	LastLoginAt       *time.Time   `json:"last_login_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// IsDealer reports whether the account belongs to a dealer profile.
func (a *Account) IsDealer() bool {
	return a.Role == RoleDealer
}

// CanEnableTOTP requires a provisioned secret that is not yet active.
func (a *Account) CanEnableTOTP() error {
	if a.TOTPSecret == "" {
		return dErrors.New(dErrors.CodeInvalidState, "two-factor authentication is not provisioned")
	}
	if a.TOTPEnabled {
		return dErrors.New(dErrors.CodeInvalidState, "two-factor authentication is already enabled")
	}
	return nil
}

func (a *Account) ApplyTOTPEnabled(now time.Time) {
	a.TOTPEnabled = true
	a.UpdatedAt = now
}

// ApplyPassword stores a new hash. Temporary passwords must be changed at next login.
func (a *Account) ApplyPassword(hash string, temporary bool, now time.Time) {
	a.PasswordHash = hash
	a.TemporaryPassword = temporary
	a.UpdatedAt = now
}

func (a *Account) ApplyLogin(now time.Time) {
	a.LastLoginAt = &now
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidatePassword enforces the password length policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be 72 bytes or less")
	}
	return nil
}

// CreateProfileRequest creates the login for a dealer.
type CreateProfileRequest struct {
	DealerID string `json:"dealerId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
}

func (r *CreateProfileRequest) Validate() error {
	if strings.TrimSpace(r.DealerID) == "" {
		return dErrors.New(dErrors.CodeValidation, "dealerId is required")
	}
	if !usernamePattern.MatchString(NormalizeUsername(r.Username)) {
		return dErrors.New(dErrors.CodeValidation, "username must be 3-64 characters of a-z, 0-9, '.', '_' or '-'")
	}
	addr, ok := email.Normalize(r.Email)
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	r.Email = addr
	return nil
}

// ProfileCreated carries the one-time secrets handed to the admin.
type ProfileCreated struct {
	Account           *Account `json:"profile"`
	TemporaryPassword string   `json:"temporary_password"`
	TOTPURI           string   `json:"totp_uri"`
}

// LoginResult is returned by a password or TOTP login step. Exactly one of
// Token and ChallengeToken is set.
type LoginResult struct {
	Token              string     `json:"token,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	TOTPRequired       bool       `json:"totp_required"`
	ChallengeToken     string     `json:"challenge_token,omitempty"`
	MustChangePassword bool       `json:"must_change_password"`
	Username           string     `json:"username"`
	Role               Role       `json:"role"`
	DealerID           string     `json:"dealer_id,omitempty"`
}
