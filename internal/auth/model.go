// Package auth implements the authentication core of the edustack backend:
// registration with email activation codes, password login, social login,
// access/refresh token rotation, Redis-backed sessions, and profile updates.
package auth

import (
	"regexp"
	"time"
)

// emailPattern is the email-shape check applied at registration time.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// RoleUser is the default role assigned to newly activated accounts.
const RoleUser = "user"

// SocialAvatarID is the sentinel avatar public id for social accounts whose
// avatar lives on the external identity provider. It must never be deleted
// from the image store because nothing was uploaded there.
const SocialAvatarID = "social_auth"

// Avatar references an uploaded profile image in the object store.
type Avatar struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// CourseRef links a user to an enrolled course.
type CourseRef struct {
	CourseID string `json:"course_id"`
}

// User is the domain model for a registered account. The same struct is
// persisted to MariaDB, serialized into the Redis session snapshot, and
// returned in JSON responses. The password hash never leaves the server.
type User struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	PasswordHash *string     `json:"-"` // nil exactly when Social is true.
	Avatar       Avatar      `json:"avatar"`
	Role         string      `json:"role"`
	Verified     bool        `json:"verified"`
	Social       bool        `json:"social"`
	Courses      []CourseRef `json:"courses"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest starts a registration. Nothing is persisted until the
// activation code is confirmed.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ActivateRequest confirms a pending registration.
type ActivateRequest struct {
	ActivationToken string `json:"activation_token"`
	ActivationCode  string `json:"activation_code"`
}

// LoginRequest authenticates with email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SocialAuthRequest provisions or logs in a social account. The external
// identity assertion is trusted; no password is involved.
type SocialAuthRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar"`
}

// UpdateInfoRequest changes profile fields. Empty fields are left untouched.
type UpdateInfoRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdatePasswordRequest rotates the account password.
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// TokenPair bundles a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
