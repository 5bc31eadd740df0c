// Package db opens the metadata store connection
package db

import (
	"errors"
	"fmt"
	"os"

	"filedrop/metadata-api/internal/model"
	"filedrop/metadata-api/pkg/util"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func New() (*gorm.DB, error) {
	var dial gorm.Dialector

	switch viper.GetString("db.driver") {
	case "postgres":
		dial = postgres.Open(viper.GetString("db.dsn"))
	default:
		dsn := viper.GetString("db.dsn")
		if dsn == "" {
			dsn = "metadata.db"
		}

		// If running in a docker container don't allow the sqlite file to be created.
		// The host should instead mount it using volumes
		if util.IsRunningInDocker() && missingFile(dsn) {
			return nil, fmt.Errorf("SQLite database file not mounted, please use docker volumes to mount it to /app/%s", dsn)
		}

		dial = sqlite.Open(dsn + "?_busy_timeout=5000")
	}

	// TranslateError turns driver-specific uniqueness failures into
	// gorm.ErrDuplicatedKey, which the registry relies on to resolve
	// dedup races
	db, err := gorm.Open(dial, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	err = db.AutoMigrate(
		model.File{},
		model.Category{},
		model.Tag{},
		model.FileTag{},
		model.UploadEvent{},
		model.AccessEvent{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}

// missingFile reports whether path doesn't exist. os.Stat wraps its errors
// in *fs.PathError, so only errors.Is can match os.ErrNotExist.
func missingFile(path string) bool {
	_, err := os.Stat(path)
	return errors.Is(err, os.ErrNotExist)
}
