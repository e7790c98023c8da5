package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  int
	DatabaseURL string
	RedisAddr   string

	JWTSecret []byte

	// EncryptionKey is the current 32-byte AES key for cookie material.
	// EncryptionKeyPrevious, when set, keeps old cookies decryptable
	// through a key rotation until they expire naturally.
	EncryptionKey         []byte
	EncryptionKeyPrevious []byte

	KafkaBrokers []string
	KafkaTopic   string

	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	UserCacheTTL      time.Duration
	BlacklistCacheTTL time.Duration
	CacheMaxSize      int
	RevokedRetention  time.Duration
	CleanupInterval   time.Duration

	CookieDomain string
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{
		ServerPort:  envIntDefault("SERVER_PORT", 8080),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		KafkaBrokers: csv(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envDefault("KAFKA_SECURITY_TOPIC", "security_events"),

		AccessTokenTTL:    envDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   envDurationDefault("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		UserCacheTTL:      envDurationDefault("USER_CACHE_TTL", time.Hour),
		BlacklistCacheTTL: envDurationDefault("BLACKLIST_CACHE_TTL", 15*time.Minute),
		CacheMaxSize:      envIntDefault("CACHE_MAX_SIZE", 5000),
		RevokedRetention:  envDurationDefault("REVOKED_RETENTION", 30*24*time.Hour),
		CleanupInterval:   envDurationDefault("CLEANUP_INTERVAL", 15*time.Minute),

		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
	}

	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	cfg.EncryptionKey, err = decodeKey(os.Getenv("ENCRYPTION_KEY"))
	if err != nil {
		return nil, fmt.Errorf("invalid ENCRYPTION_KEY: %w", err)
	}
	if prev := os.Getenv("ENCRYPTION_KEY_PREVIOUS"); prev != "" {
		cfg.EncryptionKeyPrevious, err = decodeKey(prev)
		if err != nil {
			return nil, fmt.Errorf("invalid ENCRYPTION_KEY_PREVIOUS: %w", err)
		}
	}

	return cfg, nil
}

// Keys returns the decryption key list, current key first.
func (c *Config) Keys() [][]byte {
	keys := [][]byte{c.EncryptionKey}
	if len(c.EncryptionKeyPrevious) > 0 {
		keys = append(keys, c.EncryptionKeyPrevious)
	}
	return keys
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not a hex string: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("must be a 32-byte key (64 hex characters), got %d bytes", len(key))
	}
	return key, nil
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
