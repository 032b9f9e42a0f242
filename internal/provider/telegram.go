package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glamly/auth-service/internal/domain"
)

// TelegramConfig holds Telegram login widget settings.
type TelegramConfig struct {
	BotToken  string
	BotID     string
	Origin    string
	ReturnURL string
	AuthTTL   time.Duration
}

// TelegramAuth is the payload posted by the Telegram login widget.
type TelegramAuth struct {
	ID        int64  `json:"id" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date" validate:"required"`
	Hash      string `json:"hash" validate:"required"`
}

// Telegram verifies login widget payloads. Telegram does not use the
// authorization-code flow: the widget signs the user fields with
// HMAC-SHA256 keyed by SHA256(bot token), and verification replaces the
// code exchange entirely.
type Telegram struct {
	secretKey []byte
	cfg       TelegramConfig
	now       func() time.Time
}

// NewTelegram creates a Telegram verifier.
func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.AuthTTL <= 0 {
		cfg.AuthTTL = 24 * time.Hour
	}
	key := sha256.Sum256([]byte(cfg.BotToken))
	return &Telegram{
		secretKey: key[:],
		cfg:       cfg,
		now:       time.Now,
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

// AuthCodeURL builds the widget redirect URL. Telegram carries no
// anti-forgery state of its own; the signed auth_date plays that role.
func (t *Telegram) AuthCodeURL(_ string) string {
	q := url.Values{}
	q.Set("bot_id", t.cfg.BotID)
	q.Set("origin", t.cfg.Origin)
	q.Set("return_to", t.cfg.ReturnURL)
	q.Set("request_access", "write")
	return "https://oauth.telegram.org/auth?" + q.Encode()
}

// Verify checks the payload signature and freshness and returns the
// normalized profile. Telegram exposes no email.
func (t *Telegram) Verify(auth TelegramAuth) (*domain.Profile, error) {
	if err := t.verifySignature(auth); err != nil {
		return nil, err
	}

	issued := time.Unix(auth.AuthDate, 0)
	if t.now().Sub(issued) > t.cfg.AuthTTL {
		return nil, fmt.Errorf("%w: auth_date older than %s", ErrInvalidSignature, t.cfg.AuthTTL)
	}

	return &domain.Profile{
		Provider:   t.Name(),
		ExternalID: strconv.FormatInt(auth.ID, 10),
		FirstName:  auth.FirstName,
		LastName:   auth.LastName,
		AvatarURL:  auth.PhotoURL,
	}, nil
}

// verifySignature recomputes the HMAC over the sorted data-check-string
// and compares it to the hash field in constant time.
func (t *Telegram) verifySignature(auth TelegramAuth) error {
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
	checkString := strings.Join(pairs, "\n")

	mac := hmac.New(sha256.New, t.secretKey)
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(auth.Hash)) {
		return fmt.Errorf("%w: hash mismatch", ErrInvalidSignature)
	}
	return nil
}
