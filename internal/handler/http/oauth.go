package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/internal/provider"
	"github.com/glamly/auth-service/internal/service"
	"github.com/glamly/auth-service/pkg/validator"
)

// OAuthHandler handles HTTP requests for the provider sign-in flow.
type OAuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewOAuthHandler creates a new OAuth HTTP handler.
func NewOAuthHandler(svc *service.AuthService, cookies CookieConfig, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// CallbackRequest is the JSON request body for a code-flow callback.
type CallbackRequest struct {
	Code  string `json:"code" validate:"required"`
	State string `json:"state" validate:"required"`
	Role  string `json:"role" validate:"omitempty,oneof=client master"`
}

// TelegramCallbackRequest is the JSON request body posted after the
// Telegram login widget completes.
type TelegramCallbackRequest struct {
	provider.TelegramAuth
	Role string `json:"role" validate:"omitempty,oneof=client master"`
}

// RedirectURLResponse carries the provider consent URL.
type RedirectURLResponse struct {
	URL string `json:"url"`
}

// --- Handlers ---

// RedirectURL handles GET /auth/{provider}/url
func (h *OAuthHandler) RedirectURL(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	url, err := h.service.OAuthRedirectURL(r.Context(), providerName)
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: RedirectURLResponse{URL: url}})
}

// Callback handles POST /auth/{provider}/callback. Telegram posts a
// signed widget payload instead of a code and state.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	if providerName == "telegram" {
		h.telegramCallback(w, r)
		return
	}

	var req CallbackRequest
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

	user, tokens, err := h.service.OAuthCallback(r.Context(), providerName, req.State, req.Code, domain.Role(req.Role))
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.writeAuthResponse(w, user, tokens)
}

func (h *OAuthHandler) telegramCallback(w http.ResponseWriter, r *http.Request) {
	var req TelegramCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req.TelegramAuth); err != nil {
		writeValidationError(w, err)
		return
	}

	user, tokens, err := h.service.TelegramCallback(r.Context(), req.TelegramAuth, domain.Role(req.Role))
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.writeAuthResponse(w, user, tokens)
}

func (h *OAuthHandler) writeAuthResponse(w http.ResponseWriter, user *domain.User, tokens *domain.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    tokens.RefreshToken,
		Path:     refreshCookiePath,
		Domain:   h.cookies.Domain,
		Expires:  tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{User: user, Token: tokens.AccessToken},
	})
}
