package store

import (
	"context"
	"fmt"

	"pharmacy-api/config"
)

// Open builds the Store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		s, err := NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Transactions)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverPostgres:
		s, err := NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
