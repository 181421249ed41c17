package auth

import (
	"net/http"
	"strings"
)

// Headers set by the gateway after verifying the caller's token. Upstream services
// trust them and never read the Authorization header directly.
const (
	HeaderUserID     = "X-User-Id"
	HeaderUserEmail  = "X-User-Email"
	HeaderRoles      = "X-Roles"
	HeaderProviderID = "X-Provider-Id"
)

type Identity struct {
	UserID     string
	Email      string
	Roles      []string
	ProviderID string
}

func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func IdentityFromRequest(r *http.Request) Identity {
	id := Identity{
		UserID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Email:      strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		ProviderID: strings.TrimSpace(r.Header.Get(HeaderProviderID)),
	}
	for _, role := range strings.Split(r.Header.Get(HeaderRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			id.Roles = append(id.Roles, role)
		}
	}
	return id
}

// SetIdentityHeaders replaces any client-supplied identity headers with the verified claims.
func SetIdentityHeaders(h http.Header, c *Claims) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserEmail)
	h.Del(HeaderRoles)
	h.Del(HeaderProviderID)
	h.Set(HeaderUserID, c.Sub)
	if c.Email != "" {
		h.Set(HeaderUserEmail, c.Email)
	}
	h.Set(HeaderRoles, strings.Join(c.Roles, ","))
	if c.ProviderID != "" {
		h.Set(HeaderProviderID, c.ProviderID)
	}
}

// StripIdentityHeaders removes identity headers from unauthenticated requests.
func StripIdentityHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserEmail)
	h.Del(HeaderRoles)
	h.Del(HeaderProviderID)
}
