package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/internal/provider"
	apperrors "github.com/glamly/auth-service/pkg/errors"
)

// stateBytes is the entropy of the anti-forgery state nonce.
const stateBytes = 32

// OAuthRedirectURL builds the provider consent URL for the given provider,
// generating and persisting a single-use state nonce. Telegram uses the
// login widget instead, which carries no state.
func (s *AuthService) OAuthRedirectURL(ctx context.Context, providerName string) (string, error) {
	if s.telegram != nil && providerName == s.telegram.Name() {
		return s.telegram.AuthCodeURL(""), nil
	}

	p, err := s.providers.Get(providerName)
	if err != nil {
		return "", apperrors.NotFound("provider", providerName)
	}

	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperrors.Internal(fmt.Errorf("secure random source unavailable: %w", err))
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	if err := s.stateStore.Save(ctx, state, providerName, s.cfg.StateTTL); err != nil {
		return "", apperrors.ServiceUnavailable("state store unavailable")
	}

	return p.AuthCodeURL(state), nil
}

// OAuthCallback completes the authorization-code flow. The state is
// consumed and checked before any provider call is made, so a forged or
// replayed callback never spends the authorization code.
func (s *AuthService) OAuthCallback(ctx context.Context, providerName, state, code string, role domain.Role) (*domain.User, *domain.TokenPair, error) {
	if state == "" || code == "" {
		return nil, nil, apperrors.Unauthorized("state and code are required")
	}
	if err := validateSignupRole(role); err != nil {
		return nil, nil, err
	}

	issuedFor, err := s.stateStore.Consume(ctx, state)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Unauthorized("invalid or expired state")
		}
		return nil, nil, apperrors.ServiceUnavailable("state store unavailable")
	}
	if issuedFor != providerName {
		return nil, nil, apperrors.Unauthorized("state was issued for a different provider")
	}

	p, err := s.providers.Get(providerName)
	if err != nil {
		return nil, nil, apperrors.NotFound("provider", providerName)
	}

	accessToken, err := p.Exchange(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "authorization code exchange failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		return nil, nil, apperrors.Unauthorized("authorization code rejected by provider")
	}

	profile, err := p.FetchProfile(ctx, accessToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "provider profile fetch failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		return nil, nil, apperrors.BadGateway("could not fetch profile from provider")
	}

	return s.completeProviderLogin(ctx, profile, role)
}

// TelegramCallback completes a Telegram login widget sign-in. The signed
// payload replaces the code exchange; verification failure fails closed.
func (s *AuthService) TelegramCallback(ctx context.Context, auth provider.TelegramAuth, role domain.Role) (*domain.User, *domain.TokenPair, error) {
	if s.telegram == nil {
		return nil, nil, apperrors.NotFound("provider", "telegram")
	}
	if err := validateSignupRole(role); err != nil {
		return nil, nil, err
	}

	profile, err := s.telegram.Verify(auth)
	if err != nil {
		s.logger.WarnContext(ctx, "telegram payload verification failed",
			slog.String("error", err.Error()),
		)
		return nil, nil, apperrors.Unauthorized("telegram payload verification failed")
	}

	return s.completeProviderLogin(ctx, profile, role)
}

// completeProviderLogin provisions or updates the account for the profile
// and issues a token pair. role applies only when a new account is created.
func (s *AuthService) completeProviderLogin(ctx context.Context, profile *domain.Profile, role domain.Role) (*domain.User, *domain.TokenPair, error) {
	user, created, err := s.findOrCreateUser(ctx, profile, role)
	if err != nil {
		s.logger.ErrorContext(ctx, "user provisioning failed",
			slog.String("provider", profile.Provider),
			slog.String("error", err.Error()),
		)
		return nil, nil, apperrors.ServiceUnavailable("could not provision user account")
	}

	if !user.IsActive {
		return nil, nil, apperrors.Unauthorized("account is deactivated")
	}

	tokens, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	if created {
		if err := s.producer.PublishUserRegistered(ctx, user, profile.Provider); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish user.registered event",
				slog.String("user_id", user.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.producer.PublishUserLoggedIn(ctx, user, profile.Provider); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.logged_in event",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "provider sign-in completed",
		slog.String("user_id", user.ID.String()),
		slog.String("provider", profile.Provider),
		slog.Bool("created", created),
	)

	return user, tokens, nil
}

// findOrCreateUser resolves a provider profile to a local account. It
// looks up by provider identity first, then by email to link an existing
// account, and finally creates a new one. A concurrent callback for the
// same identity loses the insert race on the unique constraint and is
// retried as a lookup.
func (s *AuthService) findOrCreateUser(ctx context.Context, profile *domain.Profile, role domain.Role) (*domain.User, bool, error) {
	user, err := s.userRepo.GetByProviderID(ctx, profile.Provider, profile.ExternalID)
	if err == nil {
		if s.applyProfileUpdates(user, profile) {
			if err := s.userRepo.Update(ctx, user); err != nil {
				return nil, false, fmt.Errorf("update user from profile: %w", err)
			}
		}
		return user, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup user by provider identity: %w", err)
	}

	// Link by email when the provider exposes one.
	if profile.Email != "" {
		user, err = s.userRepo.GetByEmail(ctx, profile.Email)
		if err == nil {
			user.OAuthProvider = profile.Provider
			user.OAuthID = profile.ExternalID
			s.applyProfileUpdates(user, profile)
			if err := s.userRepo.Update(ctx, user); err != nil {
				return nil, false, fmt.Errorf("link provider identity: %w", err)
			}
			return user, false, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, false, fmt.Errorf("lookup user by email: %w", err)
		}
	}

	if role == "" {
		role = domain.DefaultRole
	}
	now := time.Now().UTC()
	user = &domain.User{
		ID:            uuid.New(),
		Email:         profile.Email,
		FirstName:     profile.FirstName,
		LastName:      profile.LastName,
		AvatarURL:     profile.AvatarURL,
		Role:          role,
		OAuthProvider: profile.Provider,
		OAuthID:       profile.ExternalID,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if user.Email == "" {
		// Providers without email (Telegram, Instagram) get a stable
		// synthetic address so the email column stays unique.
		user.Email = fmt.Sprintf("%s_%s@%s.invalid", profile.Provider, profile.ExternalID, profile.Provider)
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// Lost the race to a concurrent callback for the same identity,
			// or the email was claimed between the lookup and the insert.
			existing, lookupErr := s.userRepo.GetByProviderID(ctx, profile.Provider, profile.ExternalID)
			if errors.Is(lookupErr, apperrors.ErrNotFound) && user.Email != "" {
				existing, lookupErr = s.userRepo.GetByEmail(ctx, user.Email)
			}
			if lookupErr != nil {
				return nil, false, fmt.Errorf("lookup user after insert race: %w", lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create user from profile: %w", err)
	}

	return user, true, nil
}

// validateSignupRole restricts which roles can be requested at sign-in.
// Admin accounts are never provisioned through a provider callback.
func validateSignupRole(role domain.Role) error {
	if role == "" {
		return nil
	}
	if role == domain.RoleAdmin || !role.Valid() {
		return apperrors.InvalidInput(fmt.Sprintf("role %q cannot be requested at sign-up", role))
	}
	return nil
}

// applyProfileUpdates copies fresh non-empty profile fields onto the user,
// reporting whether anything changed. Empty provider fields never clobber
// stored values.
func (s *AuthService) applyProfileUpdates(user *domain.User, profile *domain.Profile) bool {
	changed := false
	if profile.FirstName != "" && profile.FirstName != user.FirstName {
		user.FirstName = profile.FirstName
		changed = true
	}
	if profile.LastName != "" && profile.LastName != user.LastName {
		user.LastName = profile.LastName
		changed = true
	}
	if profile.AvatarURL != "" && profile.AvatarURL != user.AvatarURL {
		user.AvatarURL = profile.AvatarURL
		changed = true
	}
	return changed
}
