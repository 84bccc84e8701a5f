// Package migration copies the radar tables from one MySQL database to
// another in primary-key order.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/thep200/content-radar/cfg"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/pkg/db"
	"github.com/thep200/content-radar/pkg/log"
	"github.com/thep200/content-radar/pkg/retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type keyed[T any] interface {
	*T
	PrimaryKey() uint
}

type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

type Migrator struct {
	Logger log.Logger
	Config *cfg.Config

	source    *db.Mysql
	target    *db.Mysql
	batchSize int
	policy    retry.Policy
}

func NewMigrator(logger log.Logger, config *cfg.Config, source, target *db.Mysql) *Migrator {
	batchSize := config.Migration.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	policy := retry.WithRetries(config.Migration.MaxRetries)
	policy.OnRetry = func(err error, wait time.Duration) {
		logger.Warn(context.Background(), "Migration batch failed, retrying in %v: %v", wait.Round(time.Millisecond), err)
	}
	return &Migrator{
		Logger:    logger,
		Config:    config,
		source:    source,
		target:    target,
		batchSize: batchSize,
		policy:    policy,
	}
}

// Run ensures the target schema, then copies videos, comments,
// classifications and crawl sessions. It stops at the first batch that
// exhausts its retries.
func (m *Migrator) Run(ctx context.Context) ([]TableCount, error) {
	if err := model.Migrate(m.Config, m.Logger, m.target); err != nil {
		return nil, fmt.Errorf("migrate target schema: %w", err)
	}
	src, err := m.source.Db()
	if err != nil {
		return nil, fmt.Errorf("source database: %w", err)
	}
	dst, err := m.target.Db()
	if err != nil {
		return nil, fmt.Errorf("target database: %w", err)
	}

	steps := []struct {
		table string
		copy  func(ctx context.Context, src, dst *gorm.DB) (int, error)
	}{
		{"videos", copyTable[model.Video](m)},
		{"comments", copyTable[model.Comment](m)},
		{"classifications", copyTable[model.Classification](m)},
		{"crawl_sessions", copyTable[model.CrawlSession](m)},
	}

	counts := make([]TableCount, 0, len(steps))
	for _, step := range steps {
		started := time.Now()
		n, err := step.copy(ctx, src, dst)
		counts = append(counts, TableCount{Table: step.table, Rows: n})
		if err != nil {
			return counts, fmt.Errorf("table %s: %w", step.table, err)
		}
		m.Logger.Info(ctx, "Copied %d rows of %s in %v", n, step.table, time.Since(started).Round(time.Millisecond))
	}
	return counts, nil
}

func copyTable[T any, PT keyed[T]](m *Migrator) func(ctx context.Context, src, dst *gorm.DB) (int, error) {
	return func(ctx context.Context, src, dst *gorm.DB) (int, error) {
		var (
			lastID uint
			copied int
		)
		for {
			var rows []T
			if err := src.WithContext(ctx).
				Where("id > ?", lastID).
				Order("id").
				Limit(m.batchSize).
				Find(&rows).Error; err != nil {
				return copied, fmt.Errorf("read after id %d: %w", lastID, err)
			}
			if len(rows) == 0 {
				return copied, nil
			}

			first := PT(&rows[0]).PrimaryKey()
			last := PT(&rows[len(rows)-1]).PrimaryKey()
			err := retry.Do(ctx, m.policy, func() error {
				return dst.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
					return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&rows, 100).Error
				})
			})
			if err != nil {
				return copied, fmt.Errorf("batch ids %d-%d: %w", first, last, err)
			}

			copied += len(rows)
			lastID = last
			if len(rows) < m.batchSize {
				return copied, nil
			}
		}
	}
}
