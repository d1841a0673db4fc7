package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/marketbot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunSeedsInOrder(t *testing.T) {
	var order []string
	storage := &order
	seed := func(name string) Seeder {
		return SeederFunc(func(_ context.Context, s Storage) error {
			p := s.(*[]string)
			*p = append(*p, name)
			return nil
		})
	}

	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Storage:    storage,
		Seeders:    []Seeder{seed("admins"), nil, seed("demo")},
	})
	require.NoError(t, err)
	assert.Same(t, storage, res.Storage)
	assert.Equal(t, []string{"admins", "demo"}, order)
}

func TestRunStopsOnFailures(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	assert.ErrorIs(t, err, boom)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Seeders: []Seeder{SeederFunc(func(context.Context, Storage) error {
			return boom
		})},
	})
	assert.ErrorIs(t, err, boom)
}
