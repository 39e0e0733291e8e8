// Command mint-token prints an HS256 access token for local development
// against a Job Service that shares the signing secret.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"imagedash/internal/auth"
)

func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 signing secret (default $JWT_SECRET)")
	sub := flag.String("sub", "", "subject (user id)")
	email := flag.String("email", "", "optional email claim")
	issuer := flag.String("iss", "", "optional issuer claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" || *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: mint-token -secret <secret> -sub <user-id> [-email e] [-ttl 1h]")
		os.Exit(2)
	}

	now := time.Now()
	token, err := auth.SignToken(*secret, auth.TokenClaims{
		Email: *email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *sub,
			Issuer:    *issuer,
			Audience:  jwt.ClaimStrings{"authenticated"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
