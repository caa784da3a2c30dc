// Package grove is the public entry point for the grove tree store.
//
// Example:
//
//	f, err := grove.Open(types.Config{
//	    Backend: types.BackendJSONL,
//	    DataDir: ".grove-db",
//	})
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	root, err := f.Add(types.RootID, "Inbox")
package grove

import (
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/grove/internal/forest"
	"github.com/mesh-intelligence/grove/internal/storage"
	"github.com/mesh-intelligence/grove/pkg/types"
)

// Version is the grove release.
const Version = "0.1.0"

// Option configures a forest opened with Open.
type Option = forest.Option

// WithLogger routes forest events to logger, tagged component=forest.
func WithLogger(logger logrus.FieldLogger) Option {
	return forest.WithLogger(logger)
}

// Open opens the storage described by config and loads the forest from it.
// The data directory stays locked until Close.
func Open(config types.Config, opts ...Option) (types.Forest, error) {
	s, err := storage.Open(config)
	if err != nil {
		return nil, err
	}
	f, err := forest.New(s, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return f, nil
}
