package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/modality/fireauth"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: load .env: %v", err)
	}

	var (
		defaultProjectID = os.Getenv("FIREBASE_PROJECT_ID")
		defaultToken     = os.Getenv("FIREBASE_TOKEN")
	)

	projectID := flag.String("project-id", defaultProjectID, "Firebase project id (env FIREBASE_PROJECT_ID)")
	token := flag.String("token", defaultToken, "ID token or session cookie to verify (env FIREBASE_TOKEN)")
	kind := flag.String("kind", "id-token", "Credential kind: id-token or session-cookie")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout for key fetches and verification")
	flag.Parse()

	if *projectID == "" {
		flag.Usage()
		log.Fatal("project id is required (via flag, .env, or environment variables)")
	}
	if *token == "" {
		flag.Usage()
		log.Fatal("token is required (via flag, .env, or environment variables)")
	}

	verifier, err := fireauth.NewVerifier(fireauth.Config{
		ProjectID:   *projectID,
		HTTPTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("create verifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := verifier.Warmup(ctx); err != nil {
		log.Printf("warning: key prefetch: %v", err)
	}

	var claims *fireauth.Claims
	switch strings.ToLower(*kind) {
	case "id-token":
		claims, err = verifier.VerifyIDToken(ctx, *token)
	case "session-cookie":
		claims, err = verifier.VerifySessionCookie(ctx, *token)
	default:
		log.Fatalf("unknown kind %q (want id-token or session-cookie)", *kind)
	}
	if err != nil {
		log.Fatalf("verification failed (%s): %v", fireauth.CodeOf(err), err)
	}

	printClaims(claims)
}

func printClaims(claims *fireauth.Claims) {
	fmt.Println("== Firebase Credential Verified ==")
	fmt.Printf("subject         : %s\n", claims.Subject)
	fmt.Printf("user_id         : %s\n", claims.UserID)
	fmt.Printf("issuer          : %s\n", claims.Issuer)
	fmt.Printf("audience        : %s\n", claims.Audience)
	if claims.Email != "" {
		fmt.Printf("email           : %s (verified: %t)\n", claims.Email, claims.EmailVerified)
	}
	if claims.DisplayName != "" {
		fmt.Printf("display_name    : %s\n", claims.DisplayName)
	}
	if claims.SignInProvider != "" {
		fmt.Printf("sign_in_provider: %s\n", claims.SignInProvider)
	}
	if !claims.ExpiresAt.IsZero() {
		fmt.Printf("expires_at      : %s\n", claims.ExpiresAt.Format(time.RFC3339))
	}
	if !claims.AuthTime.IsZero() {
		fmt.Printf("auth_time       : %s\n", claims.AuthTime.Format(time.RFC3339))
	}
	if len(claims.Identities) > 0 {
		fmt.Println("identities:")
		for provider, uids := range claims.Identities {
			fmt.Printf("  %s: %s\n", provider, strings.Join(uids, ", "))
		}
	}
}
