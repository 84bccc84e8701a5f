package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/content-radar/internal/model/modeltest"
	"github.com/thep200/content-radar/internal/server"
)

func TestNewCrawlerAPI_ReturnsCloser(t *testing.T) {
	env := modeltest.New(t)
	config, logger = env.Config, env.Logger
	config.Redis.Addr = ""
	config.RabbitMQ.Url = ""

	checks := map[string]server.Pinger{}
	crawlerAPI, closeAll, err := newCrawlerAPI(context.Background(), env.Mysql, nil, checks)
	require.NoError(t, err)
	require.NotNil(t, crawlerAPI)
	require.NotNil(t, closeAll)
	assert.Empty(t, checks)

	require.NoError(t, crawlerAPI.Shutdown(context.Background()))
	assert.NotPanics(t, closeAll)
}

func TestCloseLogged(t *testing.T) {
	env := modeltest.New(t)
	logger = env.Logger

	calls := 0
	closeFn := closeLogged("queue", func() error {
		calls++
		return errors.New("already closed")
	})
	assert.Equal(t, 0, calls)
	assert.NotPanics(t, closeFn)
	assert.Equal(t, 1, calls)
}
