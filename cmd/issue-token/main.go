package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"listing_enricher/internal/auth"
	"listing_enricher/internal/config"
)

// issue-token signs a user bearer token with the configured JWT secret. It is
// meant for operators and local testing; an identity provider issues tokens
// in production.
func main() {
	userID := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_TOKEN_TTL)")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "ERROR: -user is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *ttl > 0 {
		cfg.JWT.TokenTTL = *ttl
	}

	token, exp, err := auth.GenerateUserToken(*userID, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Token for %s expires %s\n", *userID, time.Unix(exp, 0).UTC().Format(time.RFC3339))
	fmt.Println(token)
}
