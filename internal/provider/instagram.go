package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/glamly/auth-service/internal/domain"
	"github.com/glamly/auth-service/pkg/httpclient"
)

const instagramProfileURL = "https://graph.instagram.com/me"

var instagramEndpoint = oauth2.Endpoint{
	AuthURL:  "https://api.instagram.com/oauth/authorize",
	TokenURL: "https://api.instagram.com/oauth/access_token",
}

// InstagramConfig holds Instagram OAuth credentials.
type InstagramConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Instagram implements the authorization-code flow against the Instagram
// basic display API. Instagram exposes neither email nor real names, so
// the resulting profile carries the username as the first name and an
// empty email.
type Instagram struct {
	oauth      *oauth2.Config
	client     *httpclient.Client
	profileURL string
}

// NewInstagram creates an Instagram provider.
func NewInstagram(cfg InstagramConfig, client *httpclient.Client) *Instagram {
	return &Instagram{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     instagramEndpoint,
			Scopes:       []string{"user_profile"},
		},
		client:     client,
		profileURL: instagramProfileURL,
	}
}

func (i *Instagram) Name() string {
	return "instagram"
}

func (i *Instagram) AuthCodeURL(state string) string {
	return i.oauth.AuthCodeURL(state)
}

func (i *Instagram) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, i.client.HTTPClient())
	token, err := i.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExchange, err)
	}
	return token.AccessToken, nil
}

func (i *Instagram) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	url := i.profileURL + "?fields=id,username&access_token=" + accessToken
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrProfileFetch, err)
	}

	resp, err := i.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: me endpoint returned status %d", ErrProfileFetch, resp.StatusCode)
	}

	var info struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %w", ErrProfileFetch, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: profile missing user id", ErrProfileFetch)
	}

	return &domain.Profile{
		Provider:   i.Name(),
		ExternalID: info.ID,
		FirstName:  info.Username,
	}, nil
}
