package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"huntcall/config"
	"huntcall/internal/services"
)

// devtoken prints a signed access token for local testing against the
// configured JWT secret.
func main() {
	user := flag.String("user", "", "User id placed in the sub claim")
	hunts := flag.String("hunts", "", "Comma separated hunt ids the user belongs to")
	admin := flag.Bool("admin", false, "Grant the admin claim")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *user == "" {
		log.Fatal("-user is required")
	}

	var huntIDs []string
	for _, h := range strings.Split(*hunts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			huntIDs = append(huntIDs, h)
		}
	}

	cfg := config.LoadConfig()
	token, err := services.NewAuthService(cfg.JWTSecret, *ttl).IssueAccessToken(*user, huntIDs, *admin)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
