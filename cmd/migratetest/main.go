package main

import (
	"context"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/journal"
	"github.com/myrjola/talespin/internal/testhelpers"
	"log/slog"
	"os"
	"time"
)

// main opens a copy of a real journal so that its schema is migrated to the current definition, then checks that
// the history survived.
func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err        error
		start      = time.Now()
		ctx        context.Context
		journalURL string
		ok         bool
		cancel     context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if journalURL, ok = os.LookupEnv("TALESPIN_JOURNAL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "TALESPIN_JOURNAL not set")
		os.Exit(1)
	}

	var j *journal.Journal
	if j, err = journal.Open(ctx, journalURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error opening journal",
			slog.String("url", journalURL), errors.SlogError(err))
		os.Exit(1)
	}

	var playthroughs []journal.Playthrough
	if playthroughs, err = j.Playthroughs(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error listing playthroughs", errors.SlogError(err))
		os.Exit(1)
	}
	if len(playthroughs) == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no playthroughs found, something is likely wrong")
		os.Exit(1)
	}
	if _, err = j.Entries(ctx, playthroughs[0].ID); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error reading latest transcript", errors.SlogError(err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "playthrough count", slog.Int("count", len(playthroughs)))

	if err = j.Close(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error closing journal", errors.SlogError(err))
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
