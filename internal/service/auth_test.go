package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/glamly/auth-service/internal/auth"
	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/internal/event"
	"github.com/glamly/auth-service/internal/provider"
	apperrors "github.com/glamly/auth-service/pkg/errors"
	pkgkafka "github.com/glamly/auth-service/pkg/kafka"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByProviderID(ctx context.Context, providerName, oauthID string) (*domain.User, error) {
	args := m.Called(ctx, providerName, oauthID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) RevokeByUserID(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock State Store ---

type mockStateStore struct {
	mock.Mock
}

func (m *mockStateStore) Save(ctx context.Context, state, providerName string, ttl time.Duration) error {
	args := m.Called(ctx, state, providerName, ttl)
	return args.Error(0)
}

func (m *mockStateStore) Consume(ctx context.Context, state string) (string, error) {
	args := m.Called(ctx, state)
	return args.String(0), args.Error(1)
}

// --- Mock Provider ---

type mockProvider struct {
	mock.Mock
	name string
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) AuthCodeURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

type testFixture struct {
	userRepo   *mockUserRepository
	tokenRepo  *mockRefreshTokenRepository
	stateStore *mockStateStore
	google     *mockProvider
	svc        *AuthService
}

func newTestFixture() *testFixture {
	userRepo := new(mockUserRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	stateStore := new(mockStateStore)
	google := &mockProvider{name: "google"}

	telegram := provider.NewTelegram(provider.TelegramConfig{
		BotToken: "123456:test-bot-token",
		BotID:    "123456",
	})

	svc := NewAuthService(
		userRepo,
		tokenRepo,
		stateStore,
		provider.NewRegistry(google),
		telegram,
		auth.NewJWTManager("test-secret-key-for-testing", 15*time.Minute),
		newTestEventProducer(),
		newTestLogger(),
		Config{RefreshTokenExpiry: 720 * time.Hour, StateTTL: 10 * time.Minute},
	)

	return &testFixture{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		stateStore: stateStore,
		google:     google,
		svc:        svc,
	}
}

// hashForTest creates a bcrypt hash with cost 4 for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), 4)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func activeUser() *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:           uuid.New(),
		Email:        "anna@example.com",
		PasswordHash: hashForTest("SecurePass123"),
		FirstName:    "Anna",
		LastName:     "Schmidt",
		Role:         domain.RoleClient,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	f.userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)
	f.tokenRepo.On("Create", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	user, tokens, err := f.svc.Register(ctx, RegisterInput{
		Email:     "anna@example.com",
		Password:  "SecurePass123",
		FirstName: "Anna",
		LastName:  "Schmidt",
	})

	require.NoError(t, err)
	assert.Equal(t, "anna@example.com", user.Email)
	assert.Equal(t, domain.RoleClient, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEqual(t, tokens.AccessToken, tokens.RefreshToken)
	f.userRepo.AssertExpectations(t)
	f.tokenRepo.AssertExpectations(t)
}

func TestRegister_WeakPassword(t *testing.T) {
	f := newTestFixture()

	_, _, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "anna@example.com",
		Password:  "short",
		FirstName: "Anna",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	f.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	f.userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(apperrors.AlreadyExists("user", "email", "anna@example.com"))

	_, _, err := f.svc.Register(ctx, RegisterInput{
		Email:     "anna@example.com",
		Password:  "SecurePass123",
		FirstName: "Anna",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	user := activeUser()

	f.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)
	f.tokenRepo.On("Create", ctx, user.ID.String(), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	got, tokens, err := f.svc.Login(ctx, LoginInput{Email: user.Email, Password: "SecurePass123"})

	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	user := activeUser()

	f.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	_, _, err := f.svc.Login(ctx, LoginInput{Email: user.Email, Password: "WrongPass999"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	f.tokenRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	f.userRepo.On("GetByEmail", ctx, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, _, err := f.svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "SecurePass123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	user := activeUser()
	user.IsActive = false

	f.userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil)

	_, _, err := f.svc.Login(ctx, LoginInput{Email: user.Email, Password: "SecurePass123"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

// --- Refresh Tests ---

func TestRefresh_RotatesToken(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	user := activeUser()

	presented := "opaque-refresh-token"
	presentedHash := hashToken(presented)
	stored := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: presentedHash,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		CreatedAt: time.Now().UTC(),
	}

	f.tokenRepo.On("GetByHash", ctx, presentedHash).Return(stored, nil)
	f.tokenRepo.On("Revoke", ctx, presentedHash).Return(nil)
	f.userRepo.On("GetByID", ctx, user.ID.String()).Return(user, nil)
	f.tokenRepo.On("Create", ctx, user.ID.String(), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	tokens, err := f.svc.Refresh(ctx, presented)

	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEqual(t, presented, tokens.RefreshToken, "rotation must issue a fresh token value")
	f.tokenRepo.AssertCalled(t, "Revoke", ctx, presentedHash)
	f.tokenRepo.AssertExpectations(t)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	presented := "stale-refresh-token"
	stored := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TokenHash: hashToken(presented),
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}

	f.tokenRepo.On("GetByHash", ctx, hashToken(presented)).Return(stored, nil)

	_, err := f.svc.Refresh(ctx, presented)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	f.tokenRepo.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}

func TestRefresh_RevokedToken(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	presented := "revoked-refresh-token"
	revokedAt := time.Now().UTC().Add(-time.Minute)
	stored := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TokenHash: hashToken(presented),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		RevokedAt: &revokedAt,
	}

	f.tokenRepo.On("GetByHash", ctx, hashToken(presented)).Return(stored, nil)

	_, err := f.svc.Refresh(ctx, presented)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

func TestRefresh_LostRotationRace(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	user := activeUser()

	presented := "contested-refresh-token"
	presentedHash := hashToken(presented)
	stored := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: presentedHash,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
		CreatedAt: time.Now().UTC(),
	}

	// A concurrent refresh already flipped revoked_at, so the
	// conditional revoke reports no rows. The loser must not mint
	// a second token pair.
	f.tokenRepo.On("GetByHash", ctx, presentedHash).Return(stored, nil)
	f.tokenRepo.On("Revoke", ctx, presentedHash).Return(apperrors.ErrNotFound)

	_, err := f.svc.Refresh(ctx, presented)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	f.userRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	f.tokenRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_UnknownToken(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	f.tokenRepo.On("GetByHash", ctx, mock.AnythingOfType("string")).Return(nil, apperrors.ErrNotFound)

	_, err := f.svc.Refresh(ctx, "never-issued")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}

// --- Logout Tests ---

func TestLogout_RevokesToken(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	userID := uuid.New()

	presented := "opaque-refresh-token"
	stored := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hashToken(presented),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	f.tokenRepo.On("GetByHash", ctx, hashToken(presented)).Return(stored, nil)
	f.tokenRepo.On("Revoke", ctx, hashToken(presented)).Return(nil)

	err := f.svc.Logout(ctx, presented)

	require.NoError(t, err)
	f.tokenRepo.AssertExpectations(t)
}

func TestLogout_UnknownTokenIsIdempotent(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	f.tokenRepo.On("GetByHash", ctx, mock.AnythingOfType("string")).Return(nil, apperrors.ErrNotFound)

	err := f.svc.Logout(ctx, "never-issued")

	assert.NoError(t, err)
	f.tokenRepo.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}

func TestLogout_ConcurrentRevokeIsIdempotent(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()

	presented := "opaque-refresh-token"
	stored := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TokenHash: hashToken(presented),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	f.tokenRepo.On("GetByHash", ctx, hashToken(presented)).Return(stored, nil)
	f.tokenRepo.On("Revoke", ctx, hashToken(presented)).Return(apperrors.ErrNotFound)

	err := f.svc.Logout(ctx, presented)

	assert.NoError(t, err)
}

func TestLogoutAll(t *testing.T) {
	f := newTestFixture()
	ctx := context.Background()
	userID := uuid.New().String()

	f.tokenRepo.On("RevokeByUserID", ctx, userID).Return(nil)

	err := f.svc.LogoutAll(ctx, userID)

	require.NoError(t, err)
	f.tokenRepo.AssertExpectations(t)
}
