package domain

// Identity is the normalized view of whoever just completed a provider
// login. Subject is stable per provider account; the rest is best-effort
// profile data and may be empty.
type Identity struct {
	Provider    string
	Subject     string
	Email       string
	Login       string
	DisplayName string
}

// CanonicalSubject is the value used as the JWT subject claim,
// namespaced by provider so subjects never collide across providers.
func (id Identity) CanonicalSubject() string {
	return id.Provider + ":" + id.Subject
}
