// Package config centralizes how PondVision reads its settings and exposes
// them as strongly typed Go values. Values come from an optional
// pondvision.yaml, then PONDVISION_* environment variables, then defaults.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the server and CLI.
type Config struct {
	Address       string
	MaxFileSize   int64
	SigningSecret []byte
	SignedURLTTL  time.Duration
	// StageScale multiplies the cosmetic progress delays; 0 disables them.
	StageScale float64
	QueueSize  int
	// Seed makes verdicts reproducible when non-zero.
	Seed      uint64
	LogLevel  string
	LogFormat string
}

const (
	defaultAddress     = ":8080"
	defaultMaxFileSize = 25 << 20 // 25 MiB
	defaultSignedTTL   = 5 * time.Minute
	defaultStageScale  = 1.0
	defaultQueueSize   = 4
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
)

// Load reads configuration, searching for pondvision.yaml in paths (the
// working directory when none are given). A missing file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("pondvision")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("PONDVISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("address", defaultAddress)
	v.SetDefault("max_file_bytes", defaultMaxFileSize)
	v.SetDefault("signing_secret", "")
	v.SetDefault("signed_ttl", defaultSignedTTL)
	v.SetDefault("stage_scale", defaultStageScale)
	v.SetDefault("queue_size", defaultQueueSize)
	v.SetDefault("seed", 0)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Address:      v.GetString("address"),
		MaxFileSize:  v.GetInt64("max_file_bytes"),
		SignedURLTTL: v.GetDuration("signed_ttl"),
		StageScale:   v.GetFloat64("stage_scale"),
		QueueSize:    v.GetInt("queue_size"),
		Seed:         v.GetUint64("seed"),
		LogLevel:     strings.ToLower(v.GetString("log_level")),
		LogFormat:    strings.ToLower(v.GetString("log_format")),
	}
	if secret := v.GetString("signing_secret"); secret != "" {
		cfg.SigningSecret = []byte(secret)
	}

	// Invalid values fall back to defaults rather than failing startup.
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.StageScale < 0 {
		cfg.StageScale = defaultStageScale
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return cfg, nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte("pondvision-fallback-secret")
	}
	return buf
}
