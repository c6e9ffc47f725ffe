package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/hay-kot/postbox/internal/core/config"
	"github.com/hay-kot/postbox/internal/core/pubsub"
	"github.com/hay-kot/postbox/internal/store/jsonfile"
	"github.com/hay-kot/postbox/internal/store/pebblekv"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenCollections opens the three collections for the configured backend. The returned
// closer releases the backend and must be called once the collections are no longer used.
func OpenCollections(cfg *config.Config, log zerolog.Logger) (pubsub.Collections, io.Closer, error) {
	switch cfg.Storage.Backend {
	case config.BackendJSONFile:
		return pubsub.Collections{
			Topics:   jsonfile.New[pubsub.Topic](cfg.TopicsFile(), "topics"),
			Messages: jsonfile.New[pubsub.PendingMessage](cfg.MessagesFile(), "messages"),
			Users:    jsonfile.New[pubsub.User](cfg.UsersFile(), "users"),
		}, nopCloser{}, nil

	case config.BackendPebble:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return pubsub.Collections{}, nil, fmt.Errorf("create data dir: %w", err)
		}

		db, err := pebblekv.Open(cfg.PebbleDir(), log)
		if err != nil {
			return pubsub.Collections{}, nil, fmt.Errorf("open pebble: %w", err)
		}

		return pubsub.Collections{
			Topics:   pebblekv.NewCollection[pubsub.Topic](db, "topics"),
			Messages: pebblekv.NewCollection[pubsub.PendingMessage](db, "messages"),
			Users:    pebblekv.NewCollection[pubsub.User](db, "users"),
		}, db, nil

	default:
		return pubsub.Collections{}, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
