package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edustack/edustack/internal/apperror"
	"github.com/edustack/edustack/internal/config"
	"github.com/edustack/edustack/internal/imagestore"
	"github.com/edustack/edustack/internal/token"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn      func(ctx context.Context, user *User) error
	findByIDFn    func(ctx context.Context, id string) (*User, error)
	findByEmailFn func(ctx context.Context, email string) (*User, error)
	emailExistsFn func(ctx context.Context, email string) (bool, error)
	saveFn        func(ctx context.Context, user *User) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepo) Save(ctx context.Context, user *User) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, user)
	}
	return nil
}

// --- Mock Mail Sender ---

// mockMailSender implements MailSender and captures the last send.
type mockMailSender struct {
	sendFn func(ctx context.Context, toEmail, name, code string) error

	lastEmail string
	lastName  string
	lastCode  string
	sendCount int
}

func (m *mockMailSender) SendActivationMail(ctx context.Context, toEmail, name, code string) error {
	m.lastEmail = toEmail
	m.lastName = name
	m.lastCode = code
	m.sendCount++
	if m.sendFn != nil {
		return m.sendFn(ctx, toEmail, name, code)
	}
	return nil
}

// --- Mock Image Store ---

// mockImageStore implements ImageStore and records uploads and deletes.
type mockImageStore struct {
	uploadFn func(ctx context.Context, data []byte, folder string) (imagestore.Object, error)

	deleted []string
}

func (m *mockImageStore) Upload(ctx context.Context, data []byte, folder string) (imagestore.Object, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, data, folder)
	}
	return imagestore.Object{PublicID: folder + "/new-avatar", URL: "https://cdn.test/" + folder + "/new-avatar"}, nil
}

func (m *mockImageStore) Delete(ctx context.Context, publicID string) error {
	m.deleted = append(m.deleted, publicID)
	return nil
}

// --- Test Helpers ---

// testEnv bundles a fully wired service with its fakes so tests can reach
// into the session store and mail capture.
type testEnv struct {
	svc      *authService
	repo     *mockUserRepo
	mail     *mockMailSender
	images   *mockImageStore
	sessions *SessionStore
	redis    *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tokens := token.NewService(config.TokenConfig{
		AccessSecret:     "test-access-secret-0123456789abcdef",
		AccessExpire:     5 * time.Minute,
		RefreshSecret:    "test-refresh-secret-0123456789abcdef",
		RefreshExpire:    72 * time.Hour,
		ActivationSecret: "test-activation-secret-0123456789ab",
	})

	repo := &mockUserRepo{}
	mail := &mockMailSender{}
	images := &mockImageStore{}
	sessions := NewSessionStore(rdb)

	svc := &authService{
		repo:        repo,
		sessions:    sessions,
		tokens:      tokens,
		mail:        mail,
		images:      images,
		mailTimeout: time.Second,
	}

	return &testEnv{
		svc:      svc,
		repo:     repo,
		mail:     mail,
		images:   images,
		sessions: sessions,
		redis:    mr,
	}
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) *apperror.AppError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
	return appErr
}

// mustHash returns a bcrypt hash for fixtures.
func mustHash(t *testing.T, password string) *string {
	t.Helper()
	hash, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	return &hash
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	activationToken, err := env.svc.Register(context.Background(), RegisterRequest{
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "secure-password",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if activationToken == "" {
		t.Fatal("expected activation token")
	}

	// The code travels only by email.
	if env.mail.sendCount != 1 {
		t.Fatalf("expected 1 mail, got %d", env.mail.sendCount)
	}
	if env.mail.lastEmail != "alice@example.com" {
		t.Errorf("expected normalized recipient, got %s", env.mail.lastEmail)
	}
	if len(env.mail.lastCode) != 4 {
		t.Errorf("expected 4-digit code, got %q", env.mail.lastCode)
	}

	// Nothing durable was created.
	if keys := env.redis.Keys(); len(keys) != 0 {
		t.Errorf("expected no redis keys, got %v", keys)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.repo.emailExistsFn = func(ctx context.Context, email string) (bool, error) {
		return true, nil
	}

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Name:     "Alice",
		Email:    "taken@example.com",
		Password: "secure-password",
	})
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "duplicate_email" {
		t.Errorf("expected duplicate_email, got %s", appErr.Type)
	}

	if env.mail.sendCount != 0 {
		t.Error("no mail should be sent for a duplicate email")
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	for _, email := range []string{"", "no-at-sign", "spaces in@mail.com", "missing@tld"} {
		_, err := env.svc.Register(context.Background(), RegisterRequest{
			Name:     "Alice",
			Email:    email,
			Password: "secure-password",
		})
		if err == nil {
			t.Errorf("expected error for email %q", email)
		}
	}
}

func TestRegister_MailDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mail.sendFn = func(ctx context.Context, toEmail, name, code string) error {
		return errors.New("smtp: connection refused")
	}

	_, err := env.svc.Register(context.Background(), RegisterRequest{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "secure-password",
	})
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "mail_delivery_failed" {
		t.Errorf("expected mail_delivery_failed, got %s", appErr.Type)
	}
}

// --- Activate Tests ---

// register runs a registration and returns the token and emailed code.
func register(t *testing.T, env *testEnv, name, email, password string) (string, string) {
	t.Helper()
	activationToken, err := env.svc.Register(context.Background(), RegisterRequest{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return activationToken, env.mail.lastCode
}

func TestActivate_Success(t *testing.T) {
	env := newTestEnv(t)

	var created *User
	env.repo.createFn = func(ctx context.Context, user *User) error {
		created = user
		return nil
	}

	activationToken, code := register(t, env, "Alice", "alice@example.com", "secure-password")

	user, err := env.svc.Activate(context.Background(), activationToken, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected user to be persisted")
	}
	if !user.Verified {
		t.Error("expected activated user to be verified")
	}
	if user.Role != RoleUser {
		t.Errorf("expected role %q, got %q", RoleUser, user.Role)
	}
	if user.ID == "" {
		t.Error("expected generated user ID")
	}
	if !user.HasPassword() {
		t.Fatal("expected password hash to be set")
	}
	if *user.PasswordHash == "secure-password" {
		t.Error("password must be hashed, not stored in plaintext")
	}
	if !verifyPassword("secure-password", *user.PasswordHash) {
		t.Error("stored hash does not verify against the original password")
	}
}

func TestActivate_WrongCode(t *testing.T) {
	env := newTestEnv(t)
	activationToken, code := register(t, env, "Alice", "alice@example.com", "secure-password")

	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}

	_, err := env.svc.Activate(context.Background(), activationToken, wrong)
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "activation_code_mismatch" {
		t.Errorf("expected activation_code_mismatch, got %s", appErr.Type)
	}
}

func TestActivate_TamperedToken(t *testing.T) {
	env := newTestEnv(t)
	activationToken, code := register(t, env, "Alice", "alice@example.com", "secure-password")

	tampered := activationToken[:len(activationToken)-2] + "xx"
	_, err := env.svc.Activate(context.Background(), tampered, code)
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "token_invalid" {
		t.Errorf("expected token_invalid, got %s", appErr.Type)
	}
}

func TestActivate_EmailTakenSinceRegistration(t *testing.T) {
	env := newTestEnv(t)
	activationToken, code := register(t, env, "Alice", "alice@example.com", "secure-password")

	// Someone else claimed the address between register and activate.
	env.repo.emailExistsFn = func(ctx context.Context, email string) (bool, error) {
		return true, nil
	}

	_, err := env.svc.Activate(context.Background(), activationToken, code)
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "duplicate_email" {
		t.Errorf("expected duplicate_email, got %s", appErr.Type)
	}
}

// --- Login Tests ---

// fixtureUser returns a verified password account for login fixtures.
func fixtureUser(t *testing.T, password string) *User {
	t.Helper()
	return &User{
		ID:           "user-1",
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: mustHash(t, password),
		Role:         RoleUser,
		Verified:     true,
		Courses:      []CourseRef{},
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	env.repo.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		if email != "alice@example.com" {
			t.Errorf("expected normalized email, got %s", email)
		}
		return user, nil
	}

	got, pair, err := env.svc.Login(context.Background(), LoginRequest{
		Email:    "Alice@Example.com",
		Password: "secure-password",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, got.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}

	// The session snapshot anchors the refresh token.
	stored, err := env.sessions.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("expected session snapshot: %v", err)
	}
	if stored.Email != user.Email {
		t.Errorf("snapshot email %s, want %s", stored.Email, user.Email)
	}

	// Snapshots never expire on their own.
	if env.redis.TTL(sessionKeyPrefix+user.ID) != 0 {
		t.Error("session key must not carry a TTL")
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	env.repo.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		return user, nil
	}

	_, _, err := env.svc.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	appErr := assertAppError(t, err, 400)
	if appErr.Message != "Invalid email or password" {
		t.Errorf("unexpected message: %s", appErr.Message)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Login(context.Background(), LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	appErr := assertAppError(t, err, 400)

	// Same message as a wrong password: no account enumeration.
	if appErr.Message != "Invalid email or password" {
		t.Errorf("unexpected message: %s", appErr.Message)
	}
}

func TestLogin_SocialAccountHasNoPasswordPath(t *testing.T) {
	env := newTestEnv(t)
	env.repo.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		return &User{
			ID:       "user-2",
			Email:    "social@example.com",
			Social:   true,
			Verified: true,
		}, nil
	}

	_, _, err := env.svc.Login(context.Background(), LoginRequest{
		Email:    "social@example.com",
		Password: "anything",
	})
	assertAppError(t, err, 400)
}

// --- Social Auth Tests ---

func TestSocialAuth_CreatesAccount(t *testing.T) {
	env := newTestEnv(t)

	var created *User
	env.repo.createFn = func(ctx context.Context, user *User) error {
		created = user
		return nil
	}

	user, pair, err := env.svc.SocialAuth(context.Background(), SocialAuthRequest{
		Email:     "Bob@Example.com",
		Name:      "Bob",
		AvatarURL: "https://provider.test/bob.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected account to be created")
	}
	if !user.Social {
		t.Error("expected social flag")
	}
	if user.HasPassword() {
		t.Error("social accounts must not have a password hash")
	}
	if user.Avatar.PublicID != SocialAvatarID {
		t.Errorf("expected avatar public id %q, got %q", SocialAvatarID, user.Avatar.PublicID)
	}
	if user.Avatar.URL != "https://provider.test/bob.png" {
		t.Errorf("unexpected avatar url %q", user.Avatar.URL)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Error("expected session to be issued")
	}
}

func TestSocialAuth_ExistingAccountLogsIn(t *testing.T) {
	env := newTestEnv(t)
	existing := &User{ID: "user-3", Email: "bob@example.com", Social: true, Verified: true}
	env.repo.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		return existing, nil
	}
	env.repo.createFn = func(ctx context.Context, user *User) error {
		t.Fatal("no account should be created for an existing email")
		return nil
	}

	user, _, err := env.svc.SocialAuth(context.Background(), SocialAuthRequest{
		Email: "bob@example.com",
		Name:  "Bob",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != existing.ID {
		t.Errorf("expected existing user, got %s", user.ID)
	}
}

// --- Refresh Tests ---

// login issues a session for the fixture user and returns the pair.
func login(t *testing.T, env *testEnv, user *User) TokenPair {
	t.Helper()
	env.repo.findByEmailFn = func(ctx context.Context, email string) (*User, error) {
		return user, nil
	}
	_, pair, err := env.svc.Login(context.Background(), LoginRequest{
		Email:    user.Email,
		Password: "secure-password",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return pair
}

func TestRefresh_Success(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	got, fresh, err := env.svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, got.ID)
	}
	if fresh.AccessToken == "" || fresh.RefreshToken == "" {
		t.Error("expected a full fresh pair")
	}
}

func TestRefresh_RevokedSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	// Server-side revocation: the token is still cryptographically valid.
	if err := env.sessions.Delete(context.Background(), user.ID); err != nil {
		t.Fatalf("deleting session: %v", err)
	}

	_, _, err := env.svc.Refresh(context.Background(), pair.RefreshToken)
	appErr := assertAppError(t, err, 401)
	if appErr.Type != "session_not_found" {
		t.Errorf("expected session_not_found, got %s", appErr.Type)
	}
}

func TestRefresh_CorruptSessionSelfHeals(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	key := sessionKeyPrefix + user.ID
	if err := env.redis.Set(key, "{not json"); err != nil {
		t.Fatalf("poisoning session: %v", err)
	}

	_, _, err := env.svc.Refresh(context.Background(), pair.RefreshToken)
	appErr := assertAppError(t, err, 401)
	if appErr.Type != "session_corrupted" {
		t.Errorf("expected session_corrupted, got %s", appErr.Type)
	}

	// The poisoned entry must be gone so a retry doesn't loop on it.
	if env.redis.Exists(key) {
		t.Error("corrupted session entry should have been deleted")
	}
}

func TestRefresh_GarbageToken(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.Refresh(context.Background(), "not-a-jwt")
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "token_invalid" {
		t.Errorf("expected token_invalid, got %s", appErr.Type)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	// The access token is signed with a different secret; it must not pass
	// as a refresh token.
	_, _, err := env.svc.Refresh(context.Background(), pair.AccessToken)
	assertAppError(t, err, 400)
}

// --- Authenticate Tests ---

func TestAuthenticate_Success(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	got, err := env.svc.Authenticate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, got.ID)
	}
}

func TestAuthenticate_MissingSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	pair := login(t, env, user)

	if err := env.sessions.Delete(context.Background(), user.ID); err != nil {
		t.Fatalf("deleting session: %v", err)
	}

	_, err := env.svc.Authenticate(context.Background(), pair.AccessToken)
	appErr := assertAppError(t, err, 401)
	if appErr.Type != "unauthenticated" {
		t.Errorf("expected unauthenticated, got %s", appErr.Type)
	}
}

// --- Logout Tests ---

func TestLogout_DeletesSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	login(t, env, user)

	if err := env.svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.redis.Exists(sessionKeyPrefix + user.ID) {
		t.Error("session entry should be gone after logout")
	}
}

// --- Profile Update Tests ---

func TestUpdateProfile_SyncsSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	login(t, env, user)
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	updated, err := env.svc.UpdateProfile(context.Background(), user.ID, UpdateInfoRequest{
		Name:  "Alice Cooper",
		Email: "alice.cooper@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Alice Cooper" || updated.Email != "alice.cooper@example.com" {
		t.Errorf("unexpected profile: %s / %s", updated.Name, updated.Email)
	}

	stored, err := env.sessions.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("expected session snapshot: %v", err)
	}
	if stored.Email != "alice.cooper@example.com" {
		t.Errorf("session snapshot not refreshed, email %s", stored.Email)
	}
}

func TestUpdateProfile_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}
	env.repo.emailExistsFn = func(ctx context.Context, email string) (bool, error) {
		return true, nil
	}

	_, err := env.svc.UpdateProfile(context.Background(), user.ID, UpdateInfoRequest{
		Email: "taken@example.com",
	})
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "duplicate_email" {
		t.Errorf("expected duplicate_email, got %s", appErr.Type)
	}
}

// --- Password Update Tests ---

func TestUpdatePassword_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	login(t, env, user)
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	var saved *User
	env.repo.saveFn = func(ctx context.Context, u *User) error {
		saved = u
		return nil
	}

	err := env.svc.UpdatePassword(context.Background(), user.ID, "secure-password", "brand-new-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil {
		t.Fatal("expected user to be persisted")
	}
	if !verifyPassword("brand-new-password", *saved.PasswordHash) {
		t.Error("new password does not verify against the stored hash")
	}

	if env.redis.Exists(sessionKeyPrefix + user.ID) {
		t.Error("session must be revoked after a password change")
	}
}

func TestUpdatePassword_WrongOldPassword(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	err := env.svc.UpdatePassword(context.Background(), user.ID, "wrong-password", "new-password")
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "password_mismatch" {
		t.Errorf("expected password_mismatch, got %s", appErr.Type)
	}
}

func TestUpdatePassword_Unchanged(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	err := env.svc.UpdatePassword(context.Background(), user.ID, "secure-password", "secure-password")
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "password_unchanged" {
		t.Errorf("expected password_unchanged, got %s", appErr.Type)
	}
}

func TestUpdatePassword_SocialAccount(t *testing.T) {
	env := newTestEnv(t)
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return &User{ID: id, Email: "social@example.com", Social: true}, nil
	}

	err := env.svc.UpdatePassword(context.Background(), "user-2", "old", "new-password")
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "social_account_no_password" {
		t.Errorf("expected social_account_no_password, got %s", appErr.Type)
	}
}

// --- Avatar Update Tests ---

func TestUpdateAvatar_ReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	user.Avatar = Avatar{PublicID: "avatars/old-avatar", URL: "https://cdn.test/avatars/old-avatar"}
	login(t, env, user)
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	updated, err := env.svc.UpdateAvatar(context.Background(), user.ID, []byte("image-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(updated.Avatar.PublicID, "avatars/") {
		t.Errorf("unexpected public id %q", updated.Avatar.PublicID)
	}

	if len(env.images.deleted) != 1 || env.images.deleted[0] != "avatars/old-avatar" {
		t.Errorf("expected previous avatar to be deleted, got %v", env.images.deleted)
	}

	stored, err := env.sessions.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("expected session snapshot: %v", err)
	}
	if stored.Avatar.PublicID != updated.Avatar.PublicID {
		t.Error("session snapshot not refreshed with the new avatar")
	}
}

func TestUpdateAvatar_SocialPlaceholderNotDeleted(t *testing.T) {
	env := newTestEnv(t)
	user := &User{
		ID:     "user-2",
		Email:  "social@example.com",
		Social: true,
		Avatar: Avatar{PublicID: SocialAvatarID, URL: "https://provider.test/pic.png"},
	}
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}

	if _, err := env.svc.UpdateAvatar(context.Background(), user.ID, []byte("image-bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.images.deleted) != 0 {
		t.Errorf("social placeholder must not be deleted, got %v", env.images.deleted)
	}
}

func TestUpdateAvatar_UploadFailure(t *testing.T) {
	env := newTestEnv(t)
	user := fixtureUser(t, "secure-password")
	env.repo.findByIDFn = func(ctx context.Context, id string) (*User, error) {
		return user, nil
	}
	env.images.uploadFn = func(ctx context.Context, data []byte, folder string) (imagestore.Object, error) {
		return imagestore.Object{}, errors.New("bucket unavailable")
	}

	_, err := env.svc.UpdateAvatar(context.Background(), user.ID, []byte("not-an-image"))
	appErr := assertAppError(t, err, 400)
	if appErr.Type != "image_upload_failed" {
		t.Errorf("expected image_upload_failed, got %s", appErr.Type)
	}
}
