// Command token issues bearer tokens for local testing of the HTTP API.
package main

import (
	"flag"
	"fmt"
	"os"

	"carrental/internal/auth"
	"carrental/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		userID     = flag.String("user", "", "user id placed in the sub claim")
		role       = flag.String("role", "user", "user, owner or admin")
		ttl        = flag.Duration("ttl", 0, "token lifetime, defaults to auth.token_ttl")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.Issue(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *userID, *role, lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
