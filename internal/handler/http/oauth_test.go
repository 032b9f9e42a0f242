package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/internal/provider"
	apperrors "github.com/glamly/auth-service/pkg/errors"
)

func signTelegramAuth(auth *provider.TelegramAuth, botToken string) {
	fields := map[string]string{
		"id":        strconv.FormatInt(auth.ID, 10),
		"auth_date": strconv.FormatInt(auth.AuthDate, 10),
	}
	if auth.FirstName != "" {
		fields["first_name"] = auth.FirstName
	}
	if auth.LastName != "" {
		fields["last_name"] = auth.LastName
	}
	if auth.Username != "" {
		fields["username"] = auth.Username
	}
	if auth.PhotoURL != "" {
		fields["photo_url"] = auth.PhotoURL
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}

	key := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(strings.Join(pairs, "\n")))
	auth.Hash = hex.EncodeToString(mac.Sum(nil))
}

// ============================================================================
// GET /auth/{provider}/url
// ============================================================================

func TestOAuthRedirectURL(t *testing.T) {
	f := newRouterFixture()

	f.stateStore.On("Save", mock.Anything, mock.AnythingOfType("string"), "google", mock.AnythingOfType("time.Duration")).Return(nil)
	f.google.On("AuthCodeURL", mock.AnythingOfType("string")).Return("https://accounts.google.com/o/oauth2/auth?state=abc")

	req := httptest.NewRequest(http.MethodGet, "/auth/google/url", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	assert.Contains(t, data["url"], "accounts.google.com")
	f.stateStore.AssertExpectations(t)
}

func TestOAuthRedirectURL_UnknownProvider(t *testing.T) {
	f := newRouterFixture()

	req := httptest.NewRequest(http.MethodGet, "/auth/facebook/url", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

// ============================================================================
// POST /auth/{provider}/callback
// ============================================================================

func TestOAuthCallback_NewUser(t *testing.T) {
	f := newRouterFixture()

	f.stateStore.On("Consume", mock.Anything, "state-nonce").Return("google", nil)
	f.google.On("Exchange", mock.Anything, "auth-code").Return("provider-token", nil)
	f.google.On("FetchProfile", mock.Anything, "provider-token").Return(&domain.Profile{
		Provider:   "google",
		ExternalID: "g-12345",
		Email:      "anna@gmail.com",
		FirstName:  "Anna",
	}, nil)
	f.userRepo.On("GetByProviderID", mock.Anything, "google", "g-12345").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("GetByEmail", mock.Anything, "anna@gmail.com").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
	f.tokenRepo.On("Create", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	rec := postJSON(t, f.router, "/auth/google/callback", map[string]string{
		"code":  "auth-code",
		"state": "state-nonce",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	userData := data["user"].(map[string]any)
	assert.Equal(t, "anna@gmail.com", userData["email"])
	assert.NotEmpty(t, data["token"])

	c := refreshCookie(t, rec)
	assert.Equal(t, refreshCookiePath, c.Path)
	assert.True(t, c.HttpOnly)
}

func TestOAuthCallback_InvalidState(t *testing.T) {
	f := newRouterFixture()

	f.stateStore.On("Consume", mock.Anything, "forged-state").Return("", apperrors.ErrNotFound)

	rec := postJSON(t, f.router, "/auth/google/callback", map[string]string{
		"code":  "auth-code",
		"state": "forged-state",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	f.google.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)
}

func TestOAuthCallback_MissingFields(t *testing.T) {
	f := newRouterFixture()

	rec := postJSON(t, f.router, "/auth/google/callback", map[string]string{
		"code": "auth-code",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "State")
}

// ============================================================================
// POST /auth/telegram/callback
// ============================================================================

func TestTelegramCallback_Success(t *testing.T) {
	f := newRouterFixture()

	auth := provider.TelegramAuth{
		ID:        987654321,
		FirstName: "Oleg",
		Username:  "oleg_m",
		AuthDate:  time.Now().Unix(),
	}
	signTelegramAuth(&auth, testBotToken)

	f.userRepo.On("GetByProviderID", mock.Anything, "telegram", "987654321").Return(nil, apperrors.ErrNotFound)
	f.userRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
	f.tokenRepo.On("Create", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	rec := postJSON(t, f.router, "/auth/telegram/callback", map[string]any{
		"id":         auth.ID,
		"first_name": auth.FirstName,
		"username":   auth.Username,
		"auth_date":  auth.AuthDate,
		"hash":       auth.Hash,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	userData := data["user"].(map[string]any)
	assert.Equal(t, "telegram_987654321@telegram.invalid", userData["email"])
	refreshCookie(t, rec)
}

func TestTelegramCallback_BadSignature(t *testing.T) {
	f := newRouterFixture()

	rec := postJSON(t, f.router, "/auth/telegram/callback", map[string]any{
		"id":        987654321,
		"auth_date": time.Now().Unix(),
		"hash":      "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	f.userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
