package tester

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/emrgen/catalog/internal/config"
	"github.com/emrgen/catalog/internal/model"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db  *gorm.DB
	dir string
)

// Setup opens a fresh migrated SQLite database in a temporary directory,
// replacing the one of any earlier Setup.
func Setup() {
	RemoveDBFile()

	_ = os.Setenv("ENV", "test")

	var err error
	dir, err = os.MkdirTemp("", "catalog-test-*")
	if err != nil {
		panic(err)
	}

	db, err = Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		panic(err)
	}

	err = model.Migrate(db)
	if err != nil {
		panic(err)
	}
}

// Open opens a SQLite database configured like the production connection.
func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func TestDB() *gorm.DB {
	return db
}

func RemoveDBFile() {
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		db = nil
	}
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		panic(err)
	}
	dir = ""
}

// Redis starts an in-memory Redis server that lives until the test ends.
func Redis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// Config returns a configuration pointing at the test database.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "catalog.db")
	return cfg
}
