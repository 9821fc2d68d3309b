// Command devtoken mints an access token for local testing against a server
// using the same JWT_SIGNING_KEY.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	jwttoken "vitalis/internal/jwt_token"
	"vitalis/internal/platform/config"
	id "vitalis/pkg/domain"
)

func main() {
	var (
		userID = flag.String("user", "", "user id (random when empty)")
		role   = flag.String("role", string(id.RolePatient), "role claim: patient, clinician or admin")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if err := run(*userID, *role, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
}

func run(rawUser, rawRole string, ttl time.Duration) error {
	cfg := config.FromEnv()
	if rawUser == "" {
		rawUser = uuid.NewString()
	}
	user, err := id.ParseUserID(rawUser)
	if err != nil {
		return err
	}
	role, err := id.ParseRole(rawRole)
	if err != nil {
		return err
	}

	svc := jwttoken.NewJWTService(cfg.JWTSigningKey, jwttoken.Issuer, jwttoken.Audience)
	token, err := svc.GenerateAccessToken(user, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
