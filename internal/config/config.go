package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr              string
	DatabaseURL       string
	SessionServiceURL string
	SessionServiceKey string
	TurnEvery         time.Duration
	NPCVoteMin        int
	NPCVoteMax        int
	Seed              int64
	StartupSeedWorld  bool
	InMemory          bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TYCOON_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:              addr,
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SessionServiceURL: strings.TrimRight(strings.TrimSpace(os.Getenv("TYCOON_SESSION_URL")), "/"),
		SessionServiceKey: strings.TrimSpace(os.Getenv("TYCOON_SESSION_KEY")),
		TurnEvery:         envDurationDefault("TYCOON_TURN_EVERY", 5*time.Minute),
		NPCVoteMin:        envIntDefault("TYCOON_NPC_VOTE_MIN", 3),
		NPCVoteMax:        envIntDefault("TYCOON_NPC_VOTE_MAX", 10),
		Seed:              int64(envIntDefault("TYCOON_RAND_SEED", 0)),
		StartupSeedWorld:  envBoolDefault("TYCOON_STARTUP_SEED_WORLD", true),
		InMemory:          envBoolDefault("TYCOON_IN_MEMORY", false),
	}
	if !cfg.InMemory && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required unless TYCOON_IN_MEMORY=true")
	}
	if cfg.NPCVoteMin < 0 || cfg.NPCVoteMax < cfg.NPCVoteMin {
		return cfg, fmt.Errorf("invalid NPC vote range [%d, %d]", cfg.NPCVoteMin, cfg.NPCVoteMax)
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TYC_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
