package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

// ServerEnv holds process settings for pf serve.
type ServerEnv struct {
	Addr      string `envconfig:"ADDR" default:"127.0.0.1:8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	JWTSecret string `envconfig:"JWT_SECRET"`
}

type ArchiveEnv struct {
	Type string `envconfig:"ARCHIVE_TYPE" default:"local"`
	Dir  string `envconfig:"ARCHIVE_DIR" default:".portfolio/archive"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"portfolio/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type Env struct {
	ServerEnv
	ArchiveEnv
}

const namespace = "PORTFOLIO"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if env.ArchiveEnv.Type != "local" && env.ArchiveEnv.Type != "s3" {
		return nil, fmt.Errorf("unsupported %s_ARCHIVE_TYPE %q (want local or s3)", namespace, env.ArchiveEnv.Type)
	}
	if env.ArchiveEnv.Type == "s3" && env.S3Bucket == "" {
		return nil, fmt.Errorf("%s_S3_BUCKET is required when archive type is s3", namespace)
	}
	return &env, nil
}

func (e *ServerEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
