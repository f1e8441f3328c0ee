package fireauth

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

func TestGoogleKeyEndpointsIntegration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("RUN_INTEGRATION_TESTS not set to true")
	}

	verifier, err := NewVerifier(Config{
		ProjectID:   "integration-placeholder",
		HTTPTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := verifier.Warmup(ctx); err != nil {
		t.Fatalf("Warmup against live endpoints: %v", err)
	}

	for name, cache := range map[string]*KeyCache{
		"id token":       verifier.IDTokenKeys(),
		"session cookie": verifier.SessionCookieKeys(),
	} {
		keys, err := cache.AllKeys(ctx)
		if err != nil {
			t.Fatalf("%s AllKeys: %v", name, err)
		}
		if len(keys) == 0 {
			t.Fatalf("%s endpoint published no keys", name)
		}
		for kid, pemData := range keys {
			if !strings.Contains(pemData, "BEGIN") {
				t.Fatalf("%s key %q is not PEM: %q", name, kid, pemData)
			}
		}
	}

	projectID := strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID"))
	token := strings.TrimSpace(os.Getenv("FIREBASE_TEST_TOKEN"))
	if projectID == "" || token == "" {
		return
	}

	claims, err := verifier.VerifyIDToken(ctx, token, WithProjectID(projectID))
	if err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if claims.Subject == "" {
		t.Fatal("claims.Subject empty")
	}
}
