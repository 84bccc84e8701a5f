// Package modeltest opens throwaway in-memory databases with the radar schema.
package modeltest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Env struct {
	Config *cfg.Config
	Logger log.Logger
	Mysql  *db.Mysql
	DB     *gorm.DB
}

// New returns a migrated in-memory database that lives for the test.
func New(t testing.TB) *Env {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	loader, _ := cfg.NewMockLoader()
	config, _ := loader.Load()
	logger, _ := log.NewCslLogger()
	mysql := db.WrapGorm(gdb)

	if err := model.Migrate(config, logger, mysql); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return &Env{Config: config, Logger: logger, Mysql: mysql, DB: gdb}
}
