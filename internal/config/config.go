package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"

	defaultMembershipCacheTTL = 5 * time.Second
	defaultPresenceCacheTTL   = 5 * time.Minute
	defaultMaxPageSize        = 100
)

type Config struct {
	ServerAddr     string
	DatabaseDriver string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string

	// RedisURL enables the redis presence cache when set.
	RedisURL string
	// NatsURL enables the cross-process room relay when set.
	NatsURL string

	MembershipCacheTTL time.Duration
	PresenceCacheTTL   time.Duration
	MaxPageSize        int
}

// Params holds the raw values collected from flags and the environment.
type Params struct {
	ServerAddr         string
	DatabaseDriver     string
	DatabaseDSN        string
	SigningKey         string
	AllowedOrigins     []string
	RedisURL           string
	NatsURL            string
	MembershipCacheTTL time.Duration
	PresenceCacheTTL   time.Duration
	MaxPageSize        int
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(p Params) (*Config, error) {
	if p.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if p.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if p.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	driver := p.DatabaseDriver
	if driver == "" {
		driver = DriverPostgres
	}
	if driver != DriverPostgres && driver != DriverSqlite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	signingKey, err := decodeSigningSecret(p.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		ServerAddr:         p.ServerAddr,
		DatabaseDriver:     driver,
		DatabaseDSN:        p.DatabaseDSN,
		SigningKey:         signingKey,
		AllowedOrigins:     p.AllowedOrigins,
		RedisURL:           p.RedisURL,
		NatsURL:            p.NatsURL,
		MembershipCacheTTL: p.MembershipCacheTTL,
		PresenceCacheTTL:   p.PresenceCacheTTL,
		MaxPageSize:        p.MaxPageSize,
	}

	if cfg.MembershipCacheTTL <= 0 {
		cfg.MembershipCacheTTL = defaultMembershipCacheTTL
	}
	if cfg.PresenceCacheTTL <= 0 {
		cfg.PresenceCacheTTL = defaultPresenceCacheTTL
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = defaultMaxPageSize
	}

	return cfg, nil
}
