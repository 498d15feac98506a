package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/edustack/edustack/internal/apperror"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique-key violation.
// The UNIQUE index on users.email is the authoritative tie-breaker when two
// activations of the same email race past the existence check.
const mysqlDuplicateEntry = 1062

// UserRepository defines the data access contract for user records.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Save(ctx context.Context, user *User) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user row. Returns the duplicate-email domain error
// when the UNIQUE index on email rejects the insert.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	courses, err := marshalCourses(user.Courses)
	if err != nil {
		return fmt.Errorf("encoding courses: %w", err)
	}

	query := `INSERT INTO users
	          (id, name, email, password_hash, avatar_public_id, avatar_url,
	           role, verified, social, courses, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Avatar.PublicID,
		user.Avatar.URL,
		user.Role,
		user.Verified,
		user.Social,
		courses,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return errDuplicateEmail()
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, `WHERE id = ?`, id)
}

// FindByEmail retrieves a user by their email address.
// Returns apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `WHERE email = ?`, email)
}

// findOne runs the shared user SELECT with the given predicate.
func (r *userRepository) findOne(ctx context.Context, where string, arg any) (*User, error) {
	query := `SELECT id, name, email, password_hash, avatar_public_id, avatar_url,
	                 role, verified, social, courses, created_at, updated_at
	          FROM users ` + where

	user := &User{}
	var courses []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar.PublicID,
		&user.Avatar.URL,
		&user.Role,
		&user.Verified,
		&user.Social,
		&courses,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if user.Courses, err = unmarshalCourses(courses); err != nil {
		return nil, fmt.Errorf("decoding courses for user %s: %w", user.ID, err)
	}

	return user, nil
}

// EmailExists returns true if a user with the given email already exists.
// Used during registration to fail fast before issuing an activation token.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return exists, nil
}

// Save persists all mutable fields of an existing user row. Returns the
// duplicate-email domain error when an email change collides with another
// account, and apperror.NotFound when the row no longer exists.
func (r *userRepository) Save(ctx context.Context, user *User) error {
	courses, err := marshalCourses(user.Courses)
	if err != nil {
		return fmt.Errorf("encoding courses: %w", err)
	}

	user.UpdatedAt = time.Now().UTC()

	query := `UPDATE users
	          SET name = ?, email = ?, password_hash = ?, avatar_public_id = ?,
	              avatar_url = ?, role = ?, verified = ?, social = ?, courses = ?,
	              updated_at = ?
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Avatar.PublicID,
		user.Avatar.URL,
		user.Role,
		user.Verified,
		user.Social,
		courses,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return errDuplicateEmail()
		}
		return fmt.Errorf("updating user: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		// RowsAffected is also 0 when the update is a no-op, so double-check
		// the row actually exists before reporting not found.
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, user.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking user existence: %w", err)
		}
		if !exists {
			return apperror.NewNotFound("user not found")
		}
	}

	return nil
}

// isDuplicateEntry reports whether err is a MariaDB unique-key violation.
func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// marshalCourses encodes the enrollment list as JSON for the courses column.
func marshalCourses(courses []CourseRef) ([]byte, error) {
	if courses == nil {
		courses = []CourseRef{}
	}
	return json.Marshal(courses)
}

// unmarshalCourses decodes the courses column; NULL becomes an empty list.
func unmarshalCourses(data []byte) ([]CourseRef, error) {
	if len(data) == 0 {
		return []CourseRef{}, nil
	}
	var courses []CourseRef
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}
