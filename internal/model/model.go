package model

import (
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
)

type Model struct {
	Config    *cfg.Config `gorm:"-" json:"-"`
	Logger    log.Logger  `gorm:"-" json:"-"`
	Mysql     *db.Mysql   `gorm:"-" json:"-"`
	ID        uint        `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newModel(config *cfg.Config, logger log.Logger, mysql *db.Mysql) Model {
	return Model{
		Config: config,
		Logger: logger,
		Mysql:  mysql,
	}
}

func (m *Model) PrimaryKey() uint {
	return m.ID
}

// All returns every persisted table, in dependency order.
func All(config *cfg.Config, logger log.Logger, mysql *db.Mysql) ([]interface{}, error) {
	videoMd, err := NewVideo(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	commentMd, err := NewComment(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	classificationMd, err := NewClassification(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	sessionMd, err := NewCrawlSession(config, logger, mysql)
	if err != nil {
		return nil, err
	}
	return []interface{}{videoMd, commentMd, classificationMd, sessionMd}, nil
}

// Migrate brings every table in All up to date on mysql.
func Migrate(config *cfg.Config, logger log.Logger, mysql *db.Mysql) error {
	models, err := All(config, logger, mysql)
	if err != nil {
		return err
	}
	return mysql.Migrate(models...)
}
