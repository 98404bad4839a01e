// cookiegen mints signed auth cookies and API keys for local testing.
//
//	go run ./cmd/cookiegen -user 42 -tl 2
//	go run ./cmd/cookiegen -apikey -user 42
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/technosupport/ts-tracker/internal/authcookie"
	"github.com/technosupport/ts-tracker/internal/tokens"
)

func main() {
	userID := flag.Int64("user", 1, "user id")
	trustLevel := flag.Int("tl", 1, "trust level")
	validFor := flag.Duration("valid", 14*24*time.Hour, "cookie lifetime (0 = no expiry)")
	apiKey := flag.Bool("apikey", false, "emit a JWT api key instead of a cookie")
	flag.Parse()

	if *apiKey {
		secret := os.Getenv("TRACKER_API_KEY_SECRET")
		if secret == "" {
			secret = "dev-secret-do-not-use-in-prod"
		}
		mgr := tokens.NewManager(secret)
		key, err := mgr.Generate(*userID, *trustLevel, *validFor)
		if err != nil {
			log.Fatalf("generate api key: %v", err)
		}
		fmt.Println(key)
		return
	}

	secret := os.Getenv("TRACKER_COOKIE_SECRET")
	if secret == "" {
		secret = "dev-secret-do-not-use-in-prod"
	}

	tok := make([]byte, authcookie.TokenLength/2)
	if _, err := rand.Read(tok); err != nil {
		log.Fatalf("random token: %v", err)
	}

	c := &authcookie.Cookie{
		Token:      hex.EncodeToString(tok),
		UserID:     *userID,
		TrustLevel: *trustLevel,
		IssuedAt:   time.Now().Unix(),
		ValidFor:   int64(validFor.Seconds()),
	}
	fmt.Printf("%s=%s\n", authcookie.Name, c.Serialize(secret))
}
