package fireauth

import "time"

// Claims represents the normalized payload of a verified Firebase ID token or
// session cookie. It is constructed once, immediately after successful
// verification, and is immutable thereafter.
type Claims struct {
	Subject  string
	Issuer   string
	Audience string

	ExpiresAt time.Time
	IssuedAt  time.Time
	AuthTime  time.Time

	UserID        string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string

	SignInProvider string
	Identities     map[string][]string

	// RawClaims preserves the full decoded claim map for passthrough use.
	RawClaims map[string]any
}

// User is a derived, application-facing projection of Claims.
type User struct {
	FirebaseUID    string
	Email          string
	DisplayName    string
	AvatarURL      string
	EmailVerified  bool
	SignInProvider string
	Identities     map[string][]string
}

// claimsFromRaw builds Claims from a verified raw claim map. It is total:
// missing or mistyped fields simply stay at their zero value.
func claimsFromRaw(raw map[string]any) *Claims {
	claims := &Claims{
		Subject:   stringClaim(raw, "sub"),
		Issuer:    stringClaim(raw, "iss"),
		Audience:  stringClaim(raw, "aud"),
		Email:     stringClaim(raw, "email"),
		RawClaims: raw,
	}
	if v, ok := numericClaim(raw, "exp"); ok {
		claims.ExpiresAt = time.Unix(v, 0).UTC()
	}
	if v, ok := numericClaim(raw, "iat"); ok {
		claims.IssuedAt = time.Unix(v, 0).UTC()
	}
	if v, ok := numericClaim(raw, "auth_time"); ok {
		claims.AuthTime = time.Unix(v, 0).UTC()
	}

	claims.UserID = stringClaim(raw, "user_id")
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if v, ok := raw["email_verified"].(bool); ok {
		claims.EmailVerified = v
	}
	claims.DisplayName = stringClaim(raw, "name")
	claims.PictureURL = stringClaim(raw, "picture")

	if firebase, ok := raw["firebase"].(map[string]any); ok {
		claims.SignInProvider = stringClaim(firebase, "sign_in_provider")
		if identities, ok := firebase["identities"].(map[string]any); ok {
			claims.Identities = normalizeIdentities(identities)
		}
	}
	return claims
}

// UserFromClaims projects a Claims value into a User. The mapping is pure and
// idempotent; an empty identities map becomes nil so that callers never need
// to distinguish "missing" from "empty".
func UserFromClaims(claims *Claims) *User {
	user := &User{
		FirebaseUID:    claims.UserID,
		Email:          claims.Email,
		DisplayName:    claims.DisplayName,
		AvatarURL:      claims.PictureURL,
		EmailVerified:  claims.EmailVerified,
		SignInProvider: claims.SignInProvider,
	}
	if len(claims.Identities) > 0 {
		identities := make(map[string][]string, len(claims.Identities))
		for provider, uids := range claims.Identities {
			identities[provider] = append([]string(nil), uids...)
		}
		user.Identities = identities
	}
	return user
}

// IdentityHolder is satisfied by any value carrying a provider-to-uids
// mapping. Both Claims and User implement it.
type IdentityHolder interface {
	IdentityMap() map[string][]string
}

// IdentityMap returns the provider-to-uids mapping recorded in the claims.
func (c *Claims) IdentityMap() map[string][]string {
	if c == nil {
		return nil
	}
	return c.Identities
}

// IdentityMap returns the provider-to-uids mapping recorded on the user.
func (u *User) IdentityMap() map[string][]string {
	if u == nil {
		return nil
	}
	return u.Identities
}

// Identity returns the canonical uid the given provider recorded for the
// holder, which is the first element of the provider's uid list. The second
// return value is false when no identity exists for the provider.
func Identity(holder IdentityHolder, provider string) (string, bool) {
	if holder == nil {
		return "", false
	}
	uids := holder.IdentityMap()[provider]
	if len(uids) == 0 {
		return "", false
	}
	return uids[0], true
}

// HasIdentity reports whether the holder has an identity for the provider.
func HasIdentity(holder IdentityHolder, provider string) bool {
	_, ok := Identity(holder, provider)
	return ok
}

func stringClaim(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func numericClaim(raw map[string]any, key string) (int64, bool) {
	switch v := raw[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

func normalizeIdentities(identities map[string]any) map[string][]string {
	if len(identities) == 0 {
		return nil
	}
	out := make(map[string][]string, len(identities))
	for provider, value := range identities {
		list, ok := value.([]any)
		if !ok {
			continue
		}
		uids := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				uids = append(uids, s)
			}
		}
		out[provider] = uids
	}
	return out
}
