package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ByAncort/JwtAuth/types"
)

// UserRepository handles persistence for users and their role assignments.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, password_hash, enabled, created_at, updated_at`

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE username = $1`
	return r.getOne(ctx, query, username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (types.User, error) {
	var user types.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Enabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	user.Roles, err = r.rolesFor(ctx, user.ID)
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// Create inserts the user together with its role assignments in a single
// transaction, so a user row is never visible without its roles. Unique
// violations on username or email come back as ErrUsernameTaken/ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, user types.User, roleIDs []int) (types.User, error) {
	if len(roleIDs) == 0 {
		return types.User{}, errors.New("user requires at least one role")
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.User{}, err
	}
	defer tx.Rollback()

	const insertUser = `
		INSERT INTO users (username, email, password_hash, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		insertUser,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Enabled,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapUniqueViolation(err)
	}

	const insertRole = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, insertRole, user.ID, roleID); err != nil {
			return types.User{}, fmt.Errorf("assign role %d: %w", roleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.User{}, mapUniqueViolation(err)
	}

	user.Roles, err = r.rolesFor(ctx, user.ID)
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

// ExistsByUsername reports whether any user holds the given username.
func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ExistsByEmail reports whether any user holds the given email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *UserRepository) rolesFor(ctx context.Context, userID int) ([]string, error) {
	const query = `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}
