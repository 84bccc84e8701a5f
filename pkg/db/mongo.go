package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/content-radar/cfg"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Mongo struct {
	Config  cfg.Mongo
	once    sync.Once
	client  *mongo.Client
	initErr error
}

func NewMongo(config *cfg.Config) (*Mongo, error) {
	return &Mongo{Config: config.Mongo}, nil
}

func (m *Mongo) Client(ctx context.Context) (*mongo.Client, error) {
	m.once.Do(func() {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m.client, m.initErr = mongo.Connect(connectCtx, options.Client().ApplyURI(m.Config.Uri))
		if m.initErr != nil {
			m.initErr = fmt.Errorf("connect mongo: %w", m.initErr)
		}
	})
	return m.client, m.initErr
}

// Collection returns a handle in the configured database.
func (m *Mongo) Collection(ctx context.Context, name string) (*mongo.Collection, error) {
	client, err := m.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(m.Config.Database).Collection(name), nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	client, err := m.Client(ctx)
	if err != nil {
		return err
	}
	return client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	if m.client != nil {
		return m.client.Disconnect(ctx)
	}
	return nil
}
