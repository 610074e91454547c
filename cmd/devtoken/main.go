// Command devtoken prints an HS256 access token for local testing against
// a gateway configured with the same secret.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cwrk-planet/plan-chat/internal/security"
)

func main() {
	var (
		user     = flag.String("user", "", "subject (user id)")
		username = flag.String("username", "", "username claim")
		issuer   = flag.String("iss", "", "issuer")
		audience = flag.String("aud", "", "audience")
		ttl      = flag.Duration("ttl", 15*time.Minute, "token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("PLANCHAT_JWT_SECRET")
	if secret == "" || *user == "" {
		log.Fatal("usage: PLANCHAT_JWT_SECRET=... devtoken -user <id>")
	}

	tok, err := security.NewHS256Signer([]byte(secret), *issuer, *audience, *ttl).SignAccessToken(*user, *username, time.Now())
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok)
}
