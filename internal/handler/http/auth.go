package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/internal/service"
	"github.com/glamly/auth-service/pkg/validator"
)

// refreshCookieName is the name of the refresh token cookie.
const refreshCookieName = "refresh_token"

// refreshCookiePath scopes the cookie so browsers only attach it to the
// token endpoints (refresh and logout), never to the rest of the API.
const refreshCookiePath = "/token"

// CookieConfig holds refresh cookie settings.
type CookieConfig struct {
	Domain string
	Secure bool
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// LoginRequest is the JSON request body for password login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Role      string `json:"role" validate:"omitempty,oneof=client master"`
}

// --- Response types ---

// TokenResponse carries the session JWT. The refresh token travels only
// in the cookie.
type TokenResponse struct {
	Token string `json:"token"`
}

// AuthResponse wraps user data with the session token.
type AuthResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

// --- Handlers ---

// AuthenticationToken handles POST /authentication_token
func (h *AuthHandler) AuthenticationToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.setRefreshCookie(w, tokens)
	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{User: user, Token: tokens.AccessToken},
	})
}

// Register handles POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      domain.Role(req.Role),
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.setRefreshCookie(w, tokens)
	writeJSON(w, http.StatusCreated, response{
		Data: AuthResponse{User: user, Token: tokens.AccessToken},
	})
}

// Logout handles POST /token/logout. The route lives under the cookie
// path so browsers actually attach the refresh cookie; POST /logout is
// kept as an alias for clients that never held a cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if c, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = c.Value
	}

	if err := h.service.Logout(r.Context(), refreshToken); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /token/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "refresh token cookie is missing"},
		})
		return
	}

	tokens, err := h.service.Refresh(r.Context(), c.Value)
	if err != nil {
		h.clearRefreshCookie(w)
		writeAppError(w, r, err, h.logger)
		return
	}

	h.setRefreshCookie(w, tokens)
	writeJSON(w, http.StatusOK, response{Data: TokenResponse{Token: tokens.AccessToken}})
}

// --- Cookie helpers ---

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, tokens *domain.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    tokens.RefreshToken,
		Path:     refreshCookiePath,
		Domain:   h.cookies.Domain,
		Expires:  tokens.RefreshExpiresAt,
		MaxAge:   int(time.Until(tokens.RefreshExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}
