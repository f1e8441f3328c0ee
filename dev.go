package fireauth

// DevBypassIdentity holds attributes used when issuing a synthetic identity
// in dev mode.
type DevBypassIdentity struct {
	UID         string
	Email       string
	DisplayName string
}

// ToCallerIdentity converts the dev bypass configuration into a caller
// identity.
func (d DevBypassIdentity) ToCallerIdentity() CallerIdentity {
	claims := &Claims{
		Subject:     d.UID,
		UserID:      d.UID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
	}
	return CallerIdentity{
		Claims:    claims,
		User:      UserFromClaims(claims),
		DevBypass: true,
	}
}

// DefaultDevBypassIdentity returns a baseline identity suitable for local
// development.
func DefaultDevBypassIdentity() DevBypassIdentity {
	return DevBypassIdentity{
		UID:   "dev-bypass",
		Email: "dev@localhost",
	}
}
