package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI            string `split_words:"true" default:"mongodb://localhost:27017"`
	Database       string `split_words:"true" default:"foodbot"`
	ConnectTimeout int    `split_words:"true" default:"5"`
	MaxPoolSize    uint64 `split_words:"true" default:"10"`
}

// New connects, pings, and returns the client together with the configured database.
func (c *Config) New(ctx context.Context) (*mongo.Client, *mongo.Database, error) {
	timeout := time.Duration(c.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, 2*timeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(c.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetMaxPoolSize(c.MaxPoolSize)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, client.Database(c.Database), nil
}
