package fireauth

import (
	"errors"
	"net/http"
	"time"
)

const (
	defaultHTTPTimeout   = 5 * time.Second
	defaultFallbackTTL   = time.Hour
	defaultRetryInterval = 60 * time.Second

	idTokenCertURL       = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	sessionCookieCertURL = "https://www.googleapis.com/identitytoolkit/v3/relyingparty/publicKeys"

	idTokenIssuerPrefix       = "https://securetoken.google.com/"
	sessionCookieIssuerPrefix = "https://session.firebase.google.com/"
)

// Config describes a Verifier for a single Firebase project.
type Config struct {
	// ProjectID is the Firebase project id used as the expected audience.
	// It may be left empty and supplied per call via WithProjectID.
	ProjectID string

	// HTTPTimeout bounds each public-key fetch. Defaults to 5s.
	HTTPTimeout time.Duration

	// FallbackKeyTTL is used when the key endpoint response carries no usable
	// cache-control max-age directive. Defaults to one hour.
	FallbackKeyTTL time.Duration

	// IDTokenCertURL and SessionCookieCertURL override the key-distribution
	// endpoints. Intended for tests; production code leaves them empty.
	IDTokenCertURL       string
	SessionCookieCertURL string

	// HTTPClient overrides the client used for key fetches.
	HTTPClient *http.Client
}

// normalize sets default values for optional fields.
func (c *Config) normalize() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.FallbackKeyTTL <= 0 {
		c.FallbackKeyTTL = defaultFallbackTTL
	}
	if c.IDTokenCertURL == "" {
		c.IDTokenCertURL = idTokenCertURL
	}
	if c.SessionCookieCertURL == "" {
		c.SessionCookieCertURL = sessionCookieCertURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{
			Timeout: c.HTTPTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}
}

// validate ensures the configuration is usable.
func (c Config) validate() error {
	if c.HTTPTimeout < 0 {
		return errors.New("http timeout must not be negative")
	}
	if c.FallbackKeyTTL < 0 {
		return errors.New("fallback key ttl must not be negative")
	}
	return nil
}

// VerifyOption customizes the behaviour of a single verification call.
type VerifyOption func(*verifyParams)

type verifyParams struct {
	projectID string
}

// WithProjectID overrides the expected project id for one call.
func WithProjectID(projectID string) VerifyOption {
	return func(p *verifyParams) {
		p.projectID = projectID
	}
}
