package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/pkg/database"
	apperrors "github.com/glamly/auth-service/pkg/errors"
)

func newUserTestFixture(t *testing.T) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewUserRepository(mock)
	return repo, mock
}

func sampleUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:            uuid.MustParse("7f8cbb52-9d5a-4f7e-8e41-1c1a2b3c4d5e"),
		Email:         "anna@example.com",
		PasswordHash:  "hash-abc",
		FirstName:     "Anna",
		LastName:      "Schmidt",
		AvatarURL:     "",
		Role:          domain.RoleClient,
		IsActive:      true,
		OAuthProvider: "",
		OAuthID:       "",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// userColumns returns the 12 column names scanned by scanUser and inserted by Create.
func userColumns() []string {
	return []string{
		"id", "email", "password_hash", "first_name", "last_name",
		"avatar_url", "role", "is_active",
		"oauth_provider", "oauth_id", "created_at", "updated_at",
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns()).AddRow(
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.AvatarURL, u.Role, u.IsActive,
		u.OAuthProvider, u.OAuthID, u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepository_Create_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
			u.AvatarURL, u.Role, u.IsActive,
			u.OAuthProvider, u.OAuthID, u.CreatedAt, u.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(
			u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
			u.AvatarURL, u.Role, u.IsActive,
			u.OAuthProvider, u.OAuthID, u.CreatedAt, u.UpdatedAt,
		).
		WillReturnError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))

	err := repo.Create(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists), "expected ErrAlreadyExists, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs(u.ID.String()).
		WillReturnRows(userRow(u))

	got, err := repo.GetByID(context.Background(), u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.FirstName, got.FirstName)
	assert.Equal(t, u.Role, got.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE id =").
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByID(context.Background(), "missing-id")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "expected ErrNotFound, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByEmail_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByProviderID_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.OAuthProvider = "google"
	u.OAuthID = "g-42"

	mock.ExpectQuery("SELECT .+ FROM users WHERE oauth_provider = .+ AND oauth_id =").
		WithArgs("google", "g-42").
		WillReturnRows(userRow(u))

	got, err := repo.GetByProviderID(context.Background(), "google", "g-42")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "google", got.OAuthProvider)
	assert.Equal(t, "g-42", got.OAuthID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_GetByProviderID_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM users WHERE oauth_provider = .+ AND oauth_id =").
		WithArgs("telegram", "987").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByProviderID(context.Background(), "telegram", "987")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Update_Success(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()
	u.FirstName = "Annette"

	mock.ExpectExec("UPDATE users SET").
		WithArgs(
			u.Email, u.PasswordHash, u.FirstName, u.LastName, u.AvatarURL,
			u.Role, u.IsActive, u.OAuthProvider, u.OAuthID,
			pgxmock.AnyArg(), u.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), u)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	repo, mock := newUserTestFixture(t)
	defer mock.Close()

	u := sampleUser()

	mock.ExpectExec("UPDATE users SET").
		WithArgs(
			u.Email, u.PasswordHash, u.FirstName, u.LastName, u.AvatarURL,
			u.Role, u.IsActive, u.OAuthProvider, u.OAuthID,
			pgxmock.AnyArg(), u.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), u)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
