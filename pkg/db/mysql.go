package db

import (
	"database/sql"
	"sync"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/thep200/content-radar/cfg"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Mysql struct {
	Config  cfg.Mysql
	once    sync.Once
	db      *gorm.DB
	initErr error
}

// NewMysql targets the main Mysql block of the config.
func NewMysql(config *cfg.Config) (*Mysql, error) {
	return NewMysqlFor(config.Mysql), nil
}

// NewMysqlFor targets an arbitrary block, e.g. Migration.Source.
func NewMysqlFor(block cfg.Mysql) *Mysql {
	return &Mysql{Config: block}
}

// WrapGorm adopts an already opened connection.
func WrapGorm(db *gorm.DB) *Mysql {
	m := &Mysql{db: db}
	m.once.Do(func() {})
	return m
}

func (m *Mysql) DSN() string {
	config := mysqlDriver.Config{
		User:                 m.Config.Username,
		Passwd:               m.Config.Password,
		DBName:               m.Config.Database,
		Addr:                 m.Config.Host + ":" + m.Config.Port,
		Net:                  "tcp",
		ParseTime:            true,
		AllowNativePasswords: true,
		Params:               map[string]string{"charset": "utf8mb4"},
	}
	return config.FormatDSN()
}

func (m *Mysql) Db() (*gorm.DB, error) {
	m.once.Do(func() {
		var db *gorm.DB
		db, m.initErr = gorm.Open(mysql.Open(m.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if m.initErr != nil {
			return
		}

		var sqlDB *sql.DB
		sqlDB, m.initErr = db.DB()
		if m.initErr != nil {
			return
		}

		sqlDB.SetMaxIdleConns(m.Config.MaxIdleConnection)
		sqlDB.SetMaxOpenConns(m.Config.MaxOpenConnection)
		sqlDB.SetConnMaxLifetime(time.Duration(m.Config.MaxLifeTimeConnection) * time.Second)

		m.db = db
	})
	return m.db, m.initErr
}

func (m *Mysql) Ping() error {
	db, err := m.Db()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Mysql) Close() error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func (m *Mysql) Migrate(models ...interface{}) error {
	db, err := m.Db()
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}
