// Package bootstrap starts the logger and prepares storage before the bot runs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/marketbot/core/config"
	"github.com/m3rciful/marketbot/core/logger"
)

// Storage is whatever backing store the app seeds; seeders assert the
// concrete type they need.
type Storage any

// Seeder puts startup data into storage.
type Seeder interface {
	Seed(ctx context.Context, storage Storage) error
}

// SeederFunc lets a plain function act as a Seeder.
type SeederFunc func(ctx context.Context, storage Storage) error

func (f SeederFunc) Seed(ctx context.Context, storage Storage) error {
	return f(ctx, storage)
}

type Options struct {
	Config *coreconfig.Config
	// LoggerInit defaults to logger.InitLogger.
	LoggerInit func(*coreconfig.Config) error

	Storage Storage
	// Seeders run in order; the first failure aborts the bootstrap.
	Seeders []Seeder
}

type Result struct {
	Storage Storage
}

// Run starts the logger, then runs every seeder against opts.Storage.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	initLogger := opts.LoggerInit
	if initLogger == nil {
		initLogger = logger.InitLogger
	}
	if err := initLogger(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	ran := 0
	for i, s := range opts.Seeders {
		if s == nil {
			continue
		}
		if err := s.Seed(ctx, opts.Storage); err != nil {
			return nil, fmt.Errorf("bootstrap: seeder %d failed: %w", i, err)
		}
		ran++
	}
	logger.Debug(ctx, "app", "bootstrap.done",
		slog.Int("count", ran),
		slog.Duration("duration", time.Since(start)),
	)
	return &Result{Storage: opts.Storage}, nil
}
