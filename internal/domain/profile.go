package domain

// Profile is the normalized identity returned by a provider after a
// successful callback. ExternalID is the provider's stable user id.
// Email may be empty for providers that do not expose one.
type Profile struct {
	Provider   string
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	AvatarURL  string
}
