package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/glamly/auth-service/internal/domain"
	apperrors "github.com/glamly/auth-service/pkg/errors"
	"github.com/glamly/auth-service/pkg/database"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, avatar_url, role, is_active, oauth_provider, oauth_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	_, err := r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.AvatarURL,
		u.Role,
		u.IsActive,
		u.OAuthProvider,
		u.OAuthID,
		u.CreatedAt,
		u.UpdatedAt,
	)
	end(err)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, avatar_url, role, is_active, oauth_provider, oauth_id, created_at, updated_at
		FROM users
		WHERE id = $1`

	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, avatar_url, role, is_active, oauth_provider, oauth_id, created_at, updated_at
		FROM users
		WHERE email = $1`

	return r.scanUser(ctx, "GetUserByEmail", query, email)
}

// GetByProviderID retrieves a user by their identity provider and external id.
func (r *UserRepository) GetByProviderID(ctx context.Context, provider, oauthID string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, first_name, last_name, avatar_url, role, is_active, oauth_provider, oauth_id, created_at, updated_at
		FROM users
		WHERE oauth_provider = $1 AND oauth_id = $2`

	return r.scanUser(ctx, "GetUserByProviderID", query, provider, oauthID)
}

// Update modifies an existing user in the database.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = $1, password_hash = $2, first_name = $3, last_name = $4, avatar_url = $5,
		    role = $6, is_active = $7, oauth_provider = $8, oauth_id = $9, updated_at = $10
		WHERE id = $11`

	ctx, end := database.TraceQuery(ctx, "UpdateUser", query)
	ct, err := r.db.Exec(ctx, query,
		u.Email,
		u.PasswordHash,
		u.FirstName,
		u.LastName,
		u.AvatarURL,
		u.Role,
		u.IsActive,
		u.OAuthProvider,
		u.OAuthID,
		u.UpdatedAt,
		u.ID,
	)
	end(err)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID.String())
	}

	return nil
}

// scanUser is a helper that executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, operation, query string, args ...any) (*domain.User, error) {
	var u domain.User

	ctx, end := database.TraceQuery(ctx, operation, query)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.AvatarURL,
		&u.Role,
		&u.IsActive,
		&u.OAuthProvider,
		&u.OAuthID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

// IsUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
