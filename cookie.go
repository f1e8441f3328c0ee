package fireauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/impersonate"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	// Lifetime bounds enforced by the Identity Toolkit API.
	minCookieLifetime = 5 * time.Minute
	maxCookieLifetime = 14 * 24 * time.Hour

	defaultMintEndpoint = "https://identitytoolkit.googleapis.com/v1/projects/%s:createSessionCookie"
)

// TokenFactory allows callers to override how OAuth2 access tokens for the
// Identity Toolkit API are minted.
type TokenFactory func(context.Context, MintParams) (oauth2.TokenSource, error)

// MinterConfig defines how session cookies should be minted by default.
type MinterConfig struct {
	ProjectID      string
	ServiceAccount string
	Delegates      []string
	TokenFactory   TokenFactory
	HTTPClient     *http.Client

	// Endpoint overrides the createSessionCookie URL template. Intended for
	// tests.
	Endpoint string
}

// MintParams describe the credential used for a mint call.
type MintParams struct {
	ServiceAccount string
	Delegates      []string
}

// MintOption customizes the behaviour of a single Mint call.
type MintOption func(*MintParams)

// WithMintServiceAccount overrides the service account used to authorize the
// exchange.
func WithMintServiceAccount(email string) MintOption {
	return func(p *MintParams) {
		p.ServiceAccount = email
	}
}

// WithMintDelegates sets the impersonation delegation chain.
func WithMintDelegates(delegates ...string) MintOption {
	return func(p *MintParams) {
		p.Delegates = append([]string(nil), delegates...)
	}
}

// CookieMinter exchanges a verified ID token for a longer-lived session
// cookie via the Identity Toolkit API. It caches OAuth2 token sources per
// (service account, delegates) combination.
type CookieMinter struct {
	mu       sync.RWMutex
	factory  TokenFactory
	entries  map[minterKey]*tokenSourceEntry
	defaults MintParams
	project  string
	client   *http.Client
	endpoint string
}

type minterKey struct {
	ServiceAccount string
	Delegates      string
}

type tokenSourceEntry struct {
	source oauth2.TokenSource
}

// NewCookieMinter constructs a CookieMinter using the supplied defaults.
func NewCookieMinter(cfg MinterConfig) (*CookieMinter, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("project id is required")
	}
	factory := cfg.TokenFactory
	if factory == nil {
		factory = defaultMintFactory
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultMintEndpoint
	}
	return &CookieMinter{
		factory: factory,
		entries: make(map[minterKey]*tokenSourceEntry),
		defaults: MintParams{
			ServiceAccount: cfg.ServiceAccount,
			Delegates:      append([]string(nil), cfg.Delegates...),
		},
		project:  cfg.ProjectID,
		client:   client,
		endpoint: endpoint,
	}, nil
}

// Mint exchanges idToken for a session cookie valid for validFor.
func (m *CookieMinter) Mint(ctx context.Context, idToken string, validFor time.Duration, opts ...MintOption) (string, error) {
	if strings.TrimSpace(idToken) == "" {
		return "", errors.New("id token is required")
	}
	if validFor < minCookieLifetime || validFor > maxCookieLifetime {
		return "", fmt.Errorf("valid duration %v outside allowed range [%v, %v]", validFor, minCookieLifetime, maxCookieLifetime)
	}

	params := cloneMintParams(m.defaults)
	for _, opt := range opts {
		opt(&params)
	}

	entry, err := m.getOrCreate(ctx, params)
	if err != nil {
		return "", err
	}
	tok, err := entry.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	return m.createSessionCookie(ctx, tok.AccessToken, idToken, validFor)
}

func (m *CookieMinter) createSessionCookie(ctx context.Context, accessToken, idToken string, validFor time.Duration) (string, error) {
	body, err := json.Marshal(map[string]any{
		"idToken":       idToken,
		"validDuration": int64(validFor.Seconds()),
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf(m.endpoint, m.project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session cookie: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("identity toolkit returned %d: %s", resp.StatusCode, snippet)
	}

	var payload struct {
		SessionCookie string `json:"sessionCookie"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode session cookie response: %w", err)
	}
	if payload.SessionCookie == "" {
		return "", errors.New("empty session cookie returned")
	}
	return payload.SessionCookie, nil
}

func (m *CookieMinter) getOrCreate(ctx context.Context, params MintParams) (*tokenSourceEntry, error) {
	key := minterKey{
		ServiceAccount: params.ServiceAccount,
		Delegates:      strings.Join(params.Delegates, ","),
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if ok {
		return entry, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok = m.entries[key]; ok {
		return entry, nil
	}

	ts, err := m.factory(persistentContext(ctx), params)
	if err != nil {
		return nil, err
	}
	entry = &tokenSourceEntry{source: oauth2.ReuseTokenSource(nil, ts)}
	m.entries[key] = entry
	return entry, nil
}

func defaultMintFactory(ctx context.Context, params MintParams) (oauth2.TokenSource, error) {
	if params.ServiceAccount != "" {
		return impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: params.ServiceAccount,
			Scopes:          []string{cloudPlatformScope},
			Delegates:       params.Delegates,
		})
	}
	return google.DefaultTokenSource(ctx, cloudPlatformScope)
}

func cloneMintParams(in MintParams) MintParams {
	out := in
	if len(in.Delegates) > 0 {
		out.Delegates = append([]string(nil), in.Delegates...)
	}
	return out
}

// persistentContext detaches cached token sources from the lifetime of the
// request context that happened to create them.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	if _, ok := ctx.(*detachedContext); ok {
		return ctx
	}
	return &detachedContext{parent: ctx}
}

type detachedContext struct {
	parent context.Context
}

func (d *detachedContext) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

func (d *detachedContext) Done() <-chan struct{} {
	return nil
}

func (d *detachedContext) Err() error {
	return nil
}

func (d *detachedContext) Value(key any) any {
	if d.parent == nil {
		return nil
	}
	return d.parent.Value(key)
}
