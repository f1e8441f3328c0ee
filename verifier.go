package fireauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// signerProfile captures everything that differs between the two Firebase
// signers: the issuer template and the error codes surfaced for
// signer-specific failures.
type signerProfile struct {
	name          string
	issuerPrefix  string
	codeFormat    ErrorCode
	codeMalformed ErrorCode
	codeExpired   ErrorCode
}

var (
	idTokenSigner = signerProfile{
		name:          "ID token",
		issuerPrefix:  idTokenIssuerPrefix,
		codeFormat:    ErrCodeInvalidTokenFormat,
		codeMalformed: ErrCodeInvalidToken,
		codeExpired:   ErrCodeTokenExpired,
	}
	sessionCookieSigner = signerProfile{
		name:          "session cookie",
		issuerPrefix:  sessionCookieIssuerPrefix,
		codeFormat:    ErrCodeInvalidCookieFormat,
		codeMalformed: ErrCodeInvalidCookie,
		codeExpired:   ErrCodeCookieExpired,
	}
)

// Verifier verifies Firebase-issued ID tokens and session cookies for a
// single project. It is safe for concurrent use; the only shared mutable
// state is the pair of key caches.
type Verifier struct {
	cfg         Config
	idTokenKeys *KeyCache
	sessionKeys *KeyCache
	now         func() time.Time
}

// NewVerifier builds a verifier from the given configuration. Construction
// performs no I/O; call Warmup to prefetch signing keys eagerly.
func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return &Verifier{
		cfg:         cfg,
		idTokenKeys: NewKeyCache(cfg.IDTokenCertURL, cfg.HTTPClient, cfg.FallbackKeyTTL),
		sessionKeys: NewKeyCache(cfg.SessionCookieCertURL, cfg.HTTPClient, cfg.FallbackKeyTTL),
		now:         time.Now,
	}, nil
}

// IDTokenKeys exposes the SecureToken signer's key cache.
func (v *Verifier) IDTokenKeys() *KeyCache {
	return v.idTokenKeys
}

// SessionCookieKeys exposes the Identity Toolkit signer's key cache.
func (v *Verifier) SessionCookieKeys() *KeyCache {
	return v.sessionKeys
}

// Warmup prefetches the signing keys for both signers. Intended as a
// best-effort startup step; a failure leaves the verifier usable, since each
// verification refreshes lazily anyway.
func (v *Verifier) Warmup(ctx context.Context) error {
	return errors.Join(v.idTokenKeys.Refresh(ctx), v.sessionKeys.Refresh(ctx))
}

// VerifyIDToken verifies a Firebase ID token and returns its normalized
// claims.
func (v *Verifier) VerifyIDToken(ctx context.Context, token string, opts ...VerifyOption) (*Claims, error) {
	return v.verify(ctx, token, idTokenSigner, v.idTokenKeys, opts)
}

// VerifySessionCookie verifies a Firebase session cookie and returns its
// normalized claims.
func (v *Verifier) VerifySessionCookie(ctx context.Context, cookie string, opts ...VerifyOption) (*Claims, error) {
	return v.verify(ctx, cookie, sessionCookieSigner, v.sessionKeys, opts)
}

func (v *Verifier) verify(ctx context.Context, token string, profile signerProfile, cache *KeyCache, opts []VerifyOption) (*Claims, error) {
	var params verifyParams
	for _, opt := range opts {
		opt(&params)
	}

	// Cheap shape check before any parsing or network access.
	if strings.Count(token, ".") != 2 {
		return nil, newError(profile.codeFormat, fmt.Errorf("%s must consist of 3 segments", profile.name))
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return nil, newError(profile.codeMalformed, err)
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return nil, newError(profile.codeMalformed, fmt.Errorf("expected 1 signature, found %d", len(sigs)))
	}
	headers := sigs[0].ProtectedHeaders()

	// Algorithm confusion is rejected before any key lookup or cryptographic
	// work; "none" and HMAC variants must never reach verification.
	if alg := headers.Algorithm(); alg != jwa.RS256 {
		return nil, newError(ErrCodeInvalidAlgorithm, fmt.Errorf("%s signed with %q, want RS256", profile.name, alg))
	}
	kid := headers.KeyID()
	if kid == "" {
		return nil, newError(ErrCodeMissingKeyID, fmt.Errorf("%s header carries no kid", profile.name))
	}

	key, err := cache.KeyForKid(ctx, kid)
	if err != nil {
		return nil, err
	}

	payload, err := jws.Verify([]byte(token), jws.WithKey(jwa.RS256, key))
	if err != nil {
		return nil, newError(ErrCodeInvalidSignature, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, newError(profile.codeMalformed, fmt.Errorf("decode payload: %w", err))
	}
	if err := v.validateClaims(raw, profile, params); err != nil {
		return nil, err
	}
	return claimsFromRaw(raw), nil
}

// validateClaims applies the signer's claim predicates in a fixed order; the
// first failing predicate wins.
func (v *Verifier) validateClaims(raw map[string]any, profile signerProfile, params verifyParams) error {
	projectID := params.projectID
	if projectID == "" {
		projectID = v.cfg.ProjectID
	}
	if projectID == "" {
		return newError(ErrCodeMissingProjectID, errors.New("project id not configured"))
	}

	if aud := stringClaim(raw, "aud"); aud != projectID {
		return newError(ErrCodeInvalidAudience, fmt.Errorf("aud %q, want %q", aud, projectID))
	}
	wantIssuer := profile.issuerPrefix + projectID
	if iss := stringClaim(raw, "iss"); iss != wantIssuer {
		return newError(ErrCodeInvalidIssuer, fmt.Errorf("iss %q, want %q", iss, wantIssuer))
	}
	if sub := stringClaim(raw, "sub"); sub == "" {
		return newError(ErrCodeInvalidSubject, errors.New("sub is empty or not a string"))
	}

	now := v.now().Unix()
	exp, ok := numericClaim(raw, "exp")
	if !ok || exp <= now {
		return newError(profile.codeExpired, fmt.Errorf("exp %d is not in the future", exp))
	}
	iat, ok := numericClaim(raw, "iat")
	if !ok || iat > now {
		return newError(ErrCodeInvalidIssuedAt, fmt.Errorf("iat %d is not in the past", iat))
	}
	authTime, ok := numericClaim(raw, "auth_time")
	if !ok || authTime > now {
		return newError(ErrCodeInvalidAuthTime, fmt.Errorf("auth_time %d is not in the past", authTime))
	}
	return nil
}
