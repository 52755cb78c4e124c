// Command devtoken mints ID tokens signed with a private key from the local key directory,
// for exercising the admin endpoints without a live identity provider.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/arklim/chat-moderation/internal/infra/security"
)

func main() {
	keyDir := flag.String("keys", "./secrets", "directory holding PEM keys")
	subject := flag.String("sub", "", "subject (user id) of the token")
	email := flag.String("email", "", "optional email claim")
	issuer := flag.String("iss", "", "issuer claim, must match jwt.issuer")
	audience := flag.String("aud", "", "comma separated audience, must include jwt.audience")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	printJWKS := flag.Bool("jwks", false, "print the JWKS for the key directory instead of a token")
	flag.Parse()

	provider, err := security.NewFileKeyProvider(*keyDir)
	if err != nil {
		log.Fatalf("load keys: %v", err)
	}

	if *printJWKS {
		set, err := security.JWKS(provider.ListVerificationKeys())
		if err != nil {
			log.Fatalf("render jwks: %v", err)
		}
		fmt.Println(string(set))
		return
	}

	key, kid, err := provider.GetSigningKey()
	if err != nil {
		log.Fatalf("signing key: %v", err)
	}

	var aud []string
	for _, part := range strings.Split(*audience, ",") {
		if part = strings.TrimSpace(part); part != "" {
			aud = append(aud, part)
		}
	}

	claims, err := security.NewIDTokenClaims(security.IDTokenOptions{
		Subject:  *subject,
		Email:    *email,
		Issuer:   *issuer,
		Audience: aud,
		TTL:      *ttl,
	})
	if err != nil {
		log.Fatalf("build claims: %v", err)
	}

	token, err := security.SignIDToken(key, kid, claims)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
