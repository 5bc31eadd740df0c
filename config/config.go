// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
	validDBDrivers = []string{"sqlite", "postgres"}
)

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

	v.BindEnv("db.driver", "db_driver")
	v.BindEnv("db.dsn", "db_dsn")

	v.BindEnv("storage.type", "storage_type")
	v.BindEnv("storage.local_path", "storage_local_path")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.allowed_extensions", "upload_allowed_extensions")
	v.BindEnv("upload.fingerprint_length", "upload_fingerprint_length")

	v.BindEnv("lock.timeout_ms", "lock_timeout_ms")

	v.BindEnv("aws.access_key_id", "aws_access_key_id")
	v.BindEnv("aws.secret_access_key", "aws_secret_access_key")
	v.BindEnv("aws.region", "aws_region")
	v.BindEnv("aws.bucket", "aws_bucket")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)

	v.SetDefault("db.driver", "sqlite")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "blobs")

	v.SetDefault("upload.max_size", 50)
	v.SetDefault("upload.allowed_extensions", []string{"mp4", "webm", "png", "jpg", "pdf", "zip"})
	v.SetDefault("upload.fingerprint_length", 64)

	v.SetDefault("lock.timeout_ms", 5000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDBDrivers, v.GetString("db.driver")) {
		return errors.New("invalid db driver provided")
	}

	if v.GetString("db.driver") == "postgres" && v.GetString("db.dsn") == "" {
		return errors.New("db.dsn can't be empty when using postgres")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetInt("upload.fingerprint_length") <= 0 {
		return errors.New("upload.fingerprint_length must be bigger than 0")
	}

	if len(v.GetStringSlice("upload.allowed_extensions")) == 0 {
		return errors.New("upload.allowed_extensions can't be empty")
	}

	if v.GetInt("lock.timeout_ms") <= 0 {
		return errors.New("lock.timeout_ms must be bigger than 0")
	}

	switch v.GetString("storage.type") {
	case "s3":
		{
			if v.GetString("aws.access_key_id") == "" {
				return errors.New("access key id can't be empty")
			}
			if v.GetString("aws.secret_access_key") == "" {
				return errors.New("secret access key can't be empty")
			}
			if v.GetString("aws.region") == "" {
				return errors.New("region can't be empty")
			}
			if v.GetString("aws.bucket") == "" {
				return errors.New("bucket can't be empty")
			}
		}
	case "local":
		{
			if v.GetString("storage.local_path") == "" {
				return errors.New("storage.local_path can't be empty")
			}
		}
	default:
		return errors.New("invalid storage type provided")
	}

	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	return nil
}
