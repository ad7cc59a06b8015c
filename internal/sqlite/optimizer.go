package sqlite

import (
	"context"
	"github.com/myrjola/talespin/internal/errors"
	"log/slog"
	"time"
)

// optimize lets SQLite refresh its query planner statistics. Recommended before closing a short-lived connection,
// see https://www.sqlite.org/pragma.html#pragma_optimize.
func (db *Database) optimize(ctx context.Context) {
	start := time.Now()
	if _, err := db.ReadWrite.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		err = errors.Wrap(err, "optimize database")
		db.logger.LogAttrs(ctx, slog.LevelWarn, "failed to optimize database", errors.SlogError(err))
		return
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "optimized database", slog.Duration("duration", time.Since(start)))
}
