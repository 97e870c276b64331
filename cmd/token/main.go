package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spec-kit/reactive-engine/internal/auth"
	"github.com/spec-kit/reactive-engine/internal/config"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

// token mints bearer tokens for the sidebar app, help desk triggers and
// internal jobs, signed with AUTH_JWT_SECRET.
func main() {
	subject := flag.String("subject", string(domain.SubjectTypeAgent), "AGENT, WEBHOOK or SYSTEM")
	id := flag.String("id", "", "subject id, e.g. the agent id")
	ttl := flag.Int("ttl-minutes", 0, "token lifetime; defaults to AUTH_ACCESS_TOKEN_TTL_MINUTES")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	subjectType := domain.SubjectType(strings.ToUpper(strings.TrimSpace(*subject)))
	switch subjectType {
	case domain.SubjectTypeAgent, domain.SubjectTypeWebhook, domain.SubjectTypeSystem:
	default:
		log.Fatalf("unknown subject %q", *subject)
	}
	if strings.TrimSpace(*id) == "" {
		log.Fatal("-id is required")
	}

	minutes := cfg.Auth.AccessTokenTTLMinutes
	if *ttl > 0 {
		minutes = *ttl
	}
	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, minutes).GenerateToken(*id, subjectType)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Fprintln(os.Stdout, token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
}
