package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/marketbot/core/bootstrap"
	"github.com/m3rciful/marketbot/core/logger"
	"github.com/m3rciful/marketbot/market"
	"github.com/m3rciful/marketbot/market/store"
)

// AdminSeeder registers every administrator as a known user so they can be
// messaged before they ever write to the bot.
func AdminSeeder(adminIDs []int64, now func() time.Time) bootstrap.Seeder {
	if now == nil {
		now = time.Now
	}
	return bootstrap.SeederFunc(func(ctx context.Context, storage bootstrap.Storage) error {
		st, ok := storage.(store.Store)
		if !ok {
			return fmt.Errorf("admin seeder: unsupported storage %T", storage)
		}
		added := 0
		for _, id := range adminIDs {
			if _, err := st.GetUser(id); err == nil {
				continue
			}
			st.PutUser(market.User{ID: id, JoinedAt: now()})
			added++
		}
		logger.Info(ctx, "app", "seed.admins",
			slog.Int("count", added),
		)
		return nil
	})
}
