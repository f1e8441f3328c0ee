package fireauth

import "context"

type callerIdentityKey struct{}

// CallerIdentity represents the verified caller stored during request
// handling.
type CallerIdentity struct {
	Claims    *Claims
	User      *User
	DevBypass bool
}

// BindCallerIdentity stores the caller identity inside the context for
// downstream consumers.
func BindCallerIdentity(ctx context.Context, identity CallerIdentity) context.Context {
	return context.WithValue(ctx, callerIdentityKey{}, identity)
}

// CallerIdentityFromContext retrieves the caller identity previously stored
// in the context.
func CallerIdentityFromContext(ctx context.Context) (CallerIdentity, bool) {
	if ctx == nil {
		return CallerIdentity{}, false
	}
	value := ctx.Value(callerIdentityKey{})
	if value == nil {
		return CallerIdentity{}, false
	}
	identity, ok := value.(CallerIdentity)
	return identity, ok
}
