package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/content-radar/internal/model"
	"github.com/thep200/content-radar/internal/model/modeltest"
	"github.com/thep200/content-radar/pkg/retry"
	"gorm.io/gorm"
)

func seed(t *testing.T, env *modeltest.Env) {
	t.Helper()
	for i := 1; i <= 7; i++ {
		require.NoError(t, env.DB.Create(&model.Video{Platform: "tiktok", ExternalID: fmt.Sprintf("v%d", i), PlayCount: int64(i)}).Error)
	}
	for i := 1; i <= 3; i++ {
		require.NoError(t, env.DB.Create(&model.Comment{Platform: "tiktok", ExternalID: fmt.Sprintf("c%d", i), Text: "hi"}).Error)
	}
	require.NoError(t, env.DB.Create(&model.Classification{TargetType: "comment", TargetID: "1", Kind: "sentiment", Label: "positive"}).Error)
}

func fastPolicy(attempts uint) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestMigrator_CopiesEveryTable(t *testing.T) {
	source := modeltest.New(t)
	target := modeltest.New(t)
	seed(t, source)
	source.Config.Migration.BatchSize = 3

	m := NewMigrator(source.Logger, source.Config, source.Mysql, target.Mysql)
	counts, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TableCount{
		{Table: "videos", Rows: 7},
		{Table: "comments", Rows: 3},
		{Table: "classifications", Rows: 1},
		{Table: "crawl_sessions", Rows: 0},
	}, counts)

	var videos []model.Video
	require.NoError(t, target.DB.Order("id").Find(&videos).Error)
	require.Len(t, videos, 7)
	assert.Equal(t, "v7", videos[6].ExternalID)
	assert.EqualValues(t, 7, videos[6].ID)

	// A second run upserts instead of duplicating.
	counts, err = m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, counts[0].Rows)
	var n int64
	target.DB.Model(&model.Video{}).Count(&n)
	assert.EqualValues(t, 7, n)
}

func TestMigrator_ExhaustedBatchAborts(t *testing.T) {
	source := modeltest.New(t)
	target := modeltest.New(t)
	seed(t, source)

	attempts := 0
	require.NoError(t, target.DB.Callback().Create().Before("gorm:create").Register("fail_comments", func(tx *gorm.DB) {
		if tx.Statement.Table == "comments" {
			attempts++
			tx.AddError(errors.New("disk full"))
		}
	}))

	m := NewMigrator(source.Logger, source.Config, source.Mysql, target.Mysql)
	m.policy = fastPolicy(3)

	counts, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table comments")
	assert.Contains(t, err.Error(), "batch ids 1-3")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 3, attempts)
	require.Len(t, counts, 2)
	assert.Equal(t, 7, counts[0].Rows)
	assert.Equal(t, 0, counts[1].Rows)
}
