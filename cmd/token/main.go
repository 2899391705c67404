// Command token mints access tokens for local development.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/crackzone/teams/internal/auth"
	"github.com/joho/godotenv"
)

func main() {
	userID := flag.String("user", "", "user id (token subject)")
	username := flag.String("username", "", "username carried in the token")
	admin := flag.Bool("admin", false, "mint an admin token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" || *username == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	auth.TokenSecretKey = os.Getenv("TOKEN_AUTH_SECRET")
	if auth.TokenSecretKey == "" {
		fmt.Fprintln(os.Stderr, "TOKEN_AUTH_SECRET is not set")
		os.Exit(1)
	}

	tokenType := auth.TokenTypeUser
	if *admin {
		tokenType = auth.TokenTypeAdmin
	}

	token, err := auth.GenerateToken(*userID, *username, tokenType, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
