package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/edustack/internal/apperror"
	"github.com/edustack/edustack/internal/imagestore"
	"github.com/edustack/edustack/internal/token"
)

// bcryptCost is the work factor for password hashes.
const bcryptCost = 10

// avatarFolder is the object-store folder for uploaded profile images.
const avatarFolder = "avatars"

// MailSender delivers the activation code to a freshly registered email
// address. Implemented by internal/mailer.
type MailSender interface {
	SendActivationMail(ctx context.Context, toEmail, name, code string) error
}

// ImageStore uploads and deletes avatar images. Implemented by
// internal/imagestore against an S3-compatible backend.
type ImageStore interface {
	Upload(ctx context.Context, data []byte, folder string) (imagestore.Object, error)
	Delete(ctx context.Context, publicID string) error
}

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repository, the
// session store, or the token service directly.
type AuthService interface {
	// Register starts a registration: it issues an activation token and
	// emails the activation code. No durable state is created, so a failed
	// or abandoned registration is fully retryable.
	Register(ctx context.Context, req RegisterRequest) (activationToken string, err error)

	// Activate turns a pending registration into a persisted, verified
	// account when the submitted code matches the one inside the token.
	Activate(ctx context.Context, activationToken, activationCode string) (*User, error)

	// Login authenticates with email/password and issues a session.
	Login(ctx context.Context, req LoginRequest) (*User, TokenPair, error)

	// SocialAuth finds or provisions a passwordless social account and
	// issues a session.
	SocialAuth(ctx context.Context, req SocialAuthRequest) (*User, TokenPair, error)

	// Refresh validates a refresh token against the session cache and
	// rotates both tokens. The cache entry is the revocation anchor: a
	// cryptographically valid token with no cache entry is rejected.
	Refresh(ctx context.Context, refreshToken string) (*User, TokenPair, error)

	// Authenticate resolves a request's identity from its access token and
	// the session cache.
	Authenticate(ctx context.Context, accessToken string) (*User, error)

	// Logout deletes the session entry, revoking the refresh capability.
	Logout(ctx context.Context, userID string) error

	// UpdateProfile changes name/email and refreshes the session snapshot.
	UpdateProfile(ctx context.Context, userID string, req UpdateInfoRequest) (*User, error)

	// UpdatePassword rotates the password and deletes the session entry,
	// forcing re-authentication on all devices.
	UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error

	// UpdateAvatar uploads a new profile image, removes the previous one,
	// and refreshes the session snapshot.
	UpdateAvatar(ctx context.Context, userID string, image []byte) (*User, error)
}

// authService implements AuthService.
type authService struct {
	repo        UserRepository
	sessions    *SessionStore
	tokens      *token.Service
	mail        MailSender
	images      ImageStore
	mailTimeout time.Duration
}

// NewAuthService creates the auth service with its collaborators.
func NewAuthService(repo UserRepository, sessions *SessionStore, tokens *token.Service, mail MailSender, images ImageStore, mailTimeout time.Duration) AuthService {
	return &authService{
		repo:        repo,
		sessions:    sessions,
		tokens:      tokens,
		mail:        mail,
		images:      images,
		mailTimeout: mailTimeout,
	}
}

// Register validates the request, issues an activation token, and emails the
// activation code. The code itself is never returned to the caller; the
// emailed copy is the only channel, so a network observer of the HTTP
// exchange cannot activate the account.
func (s *authService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	if err := validateRegistration(name, email, req.Password); err != nil {
		return "", err
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return "", errDuplicateEmail()
	}

	pending := token.PendingRegistration{
		Name:     name,
		Email:    email,
		Password: req.Password,
	}

	activationToken, code, err := s.tokens.IssueActivationToken(pending)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("issuing activation token: %w", err))
	}

	// Bounded send: a slow SMTP server must not hold the registration
	// response hostage. Timeout counts as delivery failure, and since no
	// durable state exists yet the client simply retries.
	mailCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()

	if err := s.mail.SendActivationMail(mailCtx, email, name, code); err != nil {
		slog.Warn("activation mail delivery failed",
			slog.String("email", email),
			slog.Any("error", err),
		)
		return "", errMailDeliveryFailed()
	}

	slog.Info("registration started", slog.String("email", email))

	return activationToken, nil
}

// Activate verifies the activation token and code, re-checks email
// uniqueness, and persists the new verified user. The database's UNIQUE
// index on email is the final arbiter for concurrent activations.
func (s *authService) Activate(ctx context.Context, activationToken, activationCode string) (*User, error) {
	pending, code, err := s.tokens.VerifyActivationToken(activationToken)
	if err != nil {
		return nil, tokenError(err)
	}

	if code != activationCode {
		return nil, errActivationCodeMismatch()
	}

	exists, err := s.repo.EmailExists(ctx, pending.Email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, errDuplicateEmail()
	}

	hash, err := hashPassword(pending.Password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := time.Now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Name:         pending.Name,
		Email:        pending.Email,
		PasswordHash: &hash,
		Role:         RoleUser,
		Verified:     true,
		Courses:      []CourseRef{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user activated",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login verifies credentials and issues a session. Failures never reveal
// whether the email exists.
func (s *authService) Login(ctx context.Context, req LoginRequest) (*User, TokenPair, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, TokenPair{}, apperror.NewBadRequest("Please enter email and password")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.SafeCode(err) == 404 {
			return nil, TokenPair{}, errInvalidCredentials()
		}
		return nil, TokenPair{}, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	// Social accounts have no password path at all.
	if !user.HasPassword() || !verifyPassword(req.Password, *user.PasswordHash) {
		return nil, TokenPair{}, errInvalidCredentials()
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, pair, nil
}

// SocialAuth finds or creates a social account and issues a session. The
// external identity assertion is trusted as-is; there is no password.
func (s *authService) SocialAuth(ctx context.Context, req SocialAuthRequest) (*User, TokenPair, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !emailPattern.MatchString(email) {
		return nil, TokenPair{}, apperror.NewBadRequest("Please enter a valid email")
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.SafeCode(err) != 404 {
			return nil, TokenPair{}, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
		}

		now := time.Now().UTC()
		user = &User{
			ID:       uuid.NewString(),
			Name:     strings.TrimSpace(req.Name),
			Email:    email,
			Role:     RoleUser,
			Verified: true,
			Social:   true,
			Avatar: Avatar{
				PublicID: SocialAvatarID,
				URL:      req.AvatarURL,
			},
			Courses:   []CourseRef{},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := s.repo.Create(ctx, user); err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) {
				return nil, TokenPair{}, appErr
			}
			return nil, TokenPair{}, apperror.NewInternal(fmt.Errorf("creating social user: %w", err))
		}

		slog.Info("social user created",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
		)
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}

	return user, pair, nil
}

// Refresh rotates both tokens after validating the refresh token against the
// session cache. Rotation is full: both token clocks reset, while the cache
// entry itself is left untouched.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*User, TokenPair, error) {
	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, TokenPair{}, tokenError(err)
	}

	user, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return nil, TokenPair{}, sessionError(err)
	}

	pair, err := s.mintPair(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}

	return user, pair, nil
}

// Authenticate resolves the identity behind an access token. An access token
// that outlives its backing session entry does not authenticate.
func (s *authService) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	userID, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}

	user, err := s.sessions.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSessionMissing) {
			return nil, errUnauthenticated()
		}
		return nil, sessionError(err)
	}

	return user, nil
}

// Logout deletes the session entry. Cookie clearing is the handler's job.
func (s *authService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session: %w", err))
	}

	slog.Info("user logged out", slog.String("user_id", userID))

	return nil
}

// UpdateProfile applies name/email changes and overwrites the session
// snapshot so the live session stays consistent without a re-login.
func (s *authService) UpdateProfile(ctx context.Context, userID string, req UpdateInfoRequest) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		user.Name = name
	}

	if email := normalizeEmail(req.Email); email != "" && email != user.Email {
		if !emailPattern.MatchString(email) {
			return nil, apperror.NewBadRequest("Please enter a valid email")
		}
		exists, err := s.repo.EmailExists(ctx, email)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
		}
		if exists {
			return nil, errDuplicateEmail()
		}
		user.Email = email
	}

	if err := s.saveAndSync(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// UpdatePassword rotates the password and deletes the session entry. This is
// the one mutation that revokes sessions rather than refreshing them.
func (s *authService) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !user.HasPassword() {
		return errSocialAccountNoPassword()
	}

	if !verifyPassword(oldPassword, *user.PasswordHash) {
		return errPasswordMismatch()
	}

	if verifyPassword(newPassword, *user.PasswordHash) {
		return errPasswordUnchanged()
	}

	if len(newPassword) < 6 {
		return apperror.NewBadRequest("Password must be at least 6 characters")
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	user.PasswordHash = &hash

	if err := s.repo.Save(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.NewInternal(fmt.Errorf("saving user: %w", err))
	}

	// Force re-authentication everywhere: the refresh token dies with the
	// session entry.
	if err := s.sessions.Delete(ctx, user.ID); err != nil {
		return apperror.NewInternal(fmt.Errorf("revoking session: %w", err))
	}

	slog.Info("password updated", slog.String("user_id", user.ID))

	return nil
}

// UpdateAvatar uploads the new image, deletes the previous one unless it is
// the social-auth placeholder, persists, and refreshes the session snapshot.
func (s *authService) UpdateAvatar(ctx context.Context, userID string, image []byte) (*User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	obj, err := s.images.Upload(ctx, image, avatarFolder)
	if err != nil {
		slog.Warn("avatar upload failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		return nil, errImageUploadFailed()
	}

	// Remove the previous stored image. The social_auth placeholder points
	// at the identity provider, not our store, so there is nothing to delete.
	// Deletion failure is non-fatal: the new avatar already won.
	if prev := user.Avatar.PublicID; prev != "" && prev != SocialAvatarID {
		if err := s.images.Delete(ctx, prev); err != nil {
			slog.Warn("failed to delete previous avatar",
				slog.String("user_id", user.ID),
				slog.String("public_id", prev),
				slog.Any("error", err),
			)
		}
	}

	user.Avatar = Avatar{PublicID: obj.PublicID, URL: obj.URL}

	if err := s.saveAndSync(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// --- Helpers ---

// issueSession mints the token pair and writes the session snapshot. The
// snapshot is the revocation anchor and carries no TTL.
func (s *authService) issueSession(ctx context.Context, user *User) (TokenPair, error) {
	pair, err := s.mintPair(user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.sessions.Save(ctx, user); err != nil {
		return TokenPair{}, apperror.NewInternal(fmt.Errorf("storing session: %w", err))
	}

	return pair, nil
}

// mintPair issues a fresh access and refresh token for the user id.
func (s *authService) mintPair(userID string) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, apperror.NewInternal(fmt.Errorf("issuing access token: %w", err))
	}
	refresh, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, apperror.NewInternal(fmt.Errorf("issuing refresh token: %w", err))
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// saveAndSync persists the user and overwrites the session snapshot.
func (s *authService) saveAndSync(ctx context.Context, user *User) error {
	if err := s.repo.Save(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.NewInternal(fmt.Errorf("saving user: %w", err))
	}

	if err := s.sessions.Save(ctx, user); err != nil {
		return apperror.NewInternal(fmt.Errorf("refreshing session snapshot: %w", err))
	}

	return nil
}

// tokenError maps token sentinel errors onto the domain taxonomy.
func tokenError(err error) *apperror.AppError {
	if errors.Is(err, token.ErrExpired) {
		return errTokenExpired()
	}
	return errTokenInvalid()
}

// sessionError maps session store sentinel errors onto the domain taxonomy.
func sessionError(err error) *apperror.AppError {
	switch {
	case errors.Is(err, ErrSessionMissing):
		return errSessionNotFound()
	case errors.Is(err, ErrSessionCorrupt):
		return errSessionCorrupted()
	default:
		return apperror.NewInternal(err)
	}
}

// validateRegistration applies the registration input rules.
func validateRegistration(name, email, password string) *apperror.AppError {
	if name == "" {
		return apperror.NewBadRequest("Please enter your name")
	}
	if email == "" {
		return apperror.NewBadRequest("Please enter your email")
	}
	if !emailPattern.MatchString(email) {
		return apperror.NewBadRequest("Please enter a valid email")
	}
	if password == "" {
		return apperror.NewBadRequest("Please enter your password")
	}
	if len(password) < 6 {
		return apperror.NewBadRequest("Password must be at least 6 characters")
	}
	return nil
}

// normalizeEmail lowercases and trims an email address.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// hashPassword creates a bcrypt hash of the given password.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword checks a plaintext password against a bcrypt hash.
func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
