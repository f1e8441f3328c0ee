package fireauth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var maxAgePattern = regexp.MustCompile(`max-age=(\d+)`)

// KeyCache holds the RSA public keys a single Firebase signer currently
// publishes, keyed by kid. The key set is replaced atomically as a whole on
// every successful fetch; a fetch failure keeps the previous set available
// and schedules a retry within a short window.
//
// Two independent instances exist per Verifier, one for the SecureToken
// signer (ID tokens) and one for the Identity Toolkit signer (session
// cookies).
type KeyCache struct {
	url         string
	client      *http.Client
	fallbackTTL time.Duration
	now         func() time.Time

	mu     sync.RWMutex
	keys   map[string]jwk.Key
	pems   map[string]string
	expiry time.Time
}

// NewKeyCache builds a cache for the key-distribution endpoint at url.
// fallbackTTL applies when the endpoint response carries no usable
// cache-control max-age directive.
func NewKeyCache(url string, client *http.Client, fallbackTTL time.Duration) *KeyCache {
	if client == nil {
		client = http.DefaultClient
	}
	if fallbackTTL <= 0 {
		fallbackTTL = defaultFallbackTTL
	}
	return &KeyCache{
		url:         url,
		client:      client,
		fallbackTTL: fallbackTTL,
		now:         time.Now,
	}
}

// KeyForKid returns the signing key published under kid. A cache hit never
// touches the network. A miss, whether from an unknown kid or an expired
// cache, triggers exactly one forced refresh before the lookup is retried;
// key rotation can introduce a new kid well before the TTL runs out.
func (c *KeyCache) KeyForKid(ctx context.Context, kid string) (jwk.Key, error) {
	if kid == "" {
		return nil, newError(ErrCodeMissingKeyID, errors.New("kid is empty"))
	}
	if key, ok := c.cachedKey(kid); ok {
		return key, nil
	}
	refreshErr := c.refreshForMiss(ctx, kid)
	if key, ok := c.cachedKey(kid); ok {
		return key, nil
	}
	if refreshErr != nil {
		return nil, refreshErr
	}
	return nil, newError(ErrCodeCertificateNotFound, fmt.Errorf("no certificate published for kid %q", kid))
}

// AllKeys returns the current kid-to-PEM key set, refreshing it first when
// expired or empty.
func (c *KeyCache) AllKeys(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var refreshErr error
	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		refreshErr = c.refreshLocked(ctx)
	}
	if len(c.pems) == 0 {
		if refreshErr != nil {
			return nil, refreshErr
		}
		return nil, newError(ErrCodeNoKeysAvailable, errors.New("key endpoint published no keys"))
	}
	out := make(map[string]string, len(c.pems))
	for kid, pemData := range c.pems {
		out[kid] = pemData
	}
	return out, nil
}

// Refresh unconditionally fetches the key set. On failure the existing keys
// stay untouched and remain served until the shortened retry window elapses.
func (c *KeyCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// InjectKeys populates the cache directly, bypassing the network. It exists
// so that verifier tests and administrative tooling can run deterministically
// against known key material.
func (c *KeyCache) InjectKeys(pems map[string]string, ttl time.Duration) error {
	keys := make(map[string]jwk.Key, len(pems))
	cloned := make(map[string]string, len(pems))
	for kid, pemData := range pems {
		key, err := parseSigningKey(kid, pemData)
		if err != nil {
			return fmt.Errorf("parse key %q: %w", kid, err)
		}
		keys[kid] = key
		cloned[kid] = pemData
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.pems = cloned
	c.expiry = c.now().Add(ttl)
	return nil
}

func (c *KeyCache) cachedKey(kid string) (jwk.Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		return nil, false
	}
	key, ok := c.keys[kid]
	return key, ok
}

// refreshForMiss performs the single forced refresh behind a kid miss. A
// concurrent caller may already have refreshed and found the kid, in which
// case the fetch is skipped.
func (c *KeyCache) refreshForMiss(ctx context.Context, kid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.expiry) {
		if _, ok := c.keys[kid]; ok {
			return nil
		}
	}
	return c.refreshLocked(ctx)
}

func (c *KeyCache) refreshLocked(ctx context.Context) error {
	pems, ttl, err := c.fetchKeys(ctx)
	if err != nil {
		c.expiry = c.now().Add(defaultRetryInterval)
		return newError(ErrCodeKeysUnavailable, err)
	}
	keys := make(map[string]jwk.Key, len(pems))
	for kid, pemData := range pems {
		key, parseErr := parseSigningKey(kid, pemData)
		if parseErr != nil {
			c.expiry = c.now().Add(defaultRetryInterval)
			return newError(ErrCodeKeysUnavailable, fmt.Errorf("parse key %q: %w", kid, parseErr))
		}
		keys[kid] = key
	}
	c.keys = keys
	c.pems = pems
	c.expiry = c.now().Add(ttl)
	return nil
}

func (c *KeyCache) fetchKeys(ctx context.Context) (map[string]string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("key endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	var pems map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&pems); err != nil {
		return nil, 0, fmt.Errorf("decode key response: %w", err)
	}
	return pems, maxAgeFrom(resp.Header.Get("Cache-Control"), c.fallbackTTL), nil
}

// maxAgeFrom extracts the max-age directive from a cache-control header,
// falling back when absent or non-positive.
func maxAgeFrom(cacheControl string, fallback time.Duration) time.Duration {
	match := maxAgePattern.FindStringSubmatch(cacheControl)
	if match == nil {
		return fallback
	}
	seconds, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// parseSigningKey turns a PEM-encoded x509 certificate or public key into a
// jwk.Key ready for RS256 verification.
func parseSigningKey(kid, pemData string) (jwk.Key, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	var rsaKey *rsa.PublicKey
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate holds a %T, not an RSA key", cert.PublicKey)
		}
		rsaKey = pub
	default:
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("PEM block holds a %T, not an RSA key", pub)
		}
		rsaKey = key
	}

	key, err := jwk.FromRaw(rsaKey)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	return key, nil
}
