// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	sweepStaging   = pflag.Bool("sweep-staging", false, "Deletes orphaned staging files on startup")
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDBDrivers = []string{"sqlite", "postgres"}
)

// SweepStagingOnBoot reports whether the --sweep-staging flag was passed.
func SweepStagingOnBoot() bool {
	return *sweepStaging
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.domain", "host_domain")

	v.BindEnv("database.driver", "database_driver")
	v.BindEnv("database.dsn", "database_dsn")

	v.BindEnv("redis.addr", "redis_addr")
	v.BindEnv("redis.password", "redis_password")
	v.BindEnv("redis.db", "redis_db")

	v.BindEnv("storage.temp_dir", "storage_temp_dir")

	v.BindEnv("upload.chunk_size", "upload_chunk_size")
	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.session_ttl", "upload_session_ttl")
	v.BindEnv("upload.guard_ttl", "upload_guard_ttl")

	v.BindEnv("jwt.secret", "jwt_secret")

	v.BindEnv("aws.region", "aws_region")
	v.BindEnv("aws.access_key", "aws_access_key")
	v.BindEnv("aws.secret_access_key", "aws_secret_access_key")
	v.BindEnv("aws.bucket", "aws_bucket")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.domain", "localhost")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.temp_dir", os.TempDir())

	v.SetDefault("upload.chunk_size", 4)
	v.SetDefault("upload.max_size", 4096)
	v.SetDefault("upload.session_ttl", 8*time.Hour)
	v.SetDefault("upload.guard_ttl", 10*time.Minute)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDBDrivers, v.GetString("database.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("database.dsn") == "" {
		return errors.New("database dsn can't be empty")
	}

	if v.GetString("redis.addr") == "" {
		return errors.New("redis address can't be empty")
	}

	if v.GetInt("upload.chunk_size") <= 0 {
		return errors.New("upload.chunk_size must be bigger than 0")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetDuration("upload.session_ttl") <= 0 {
		return errors.New("upload.session_ttl must be bigger than 0")
	}

	if v.GetDuration("upload.guard_ttl") <= 0 {
		return errors.New("upload.guard_ttl must be bigger than 0")
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	if v.GetString("aws.region") == "" {
		return errors.New("aws region can't be empty")
	}

	if v.GetString("aws.access_key") == "" {
		return errors.New("aws access key can't be empty")
	}

	if v.GetString("aws.secret_access_key") == "" {
		return errors.New("aws secret access key can't be empty")
	}

	if v.GetString("aws.bucket") == "" {
		return errors.New("aws bucket can't be empty")
	}

	// Chunk and max sizes are configured in MiB
	v.Set("upload.chunk_size", v.GetInt64("upload.chunk_size")<<20)
	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}
