package main

import (
	"fmt"
	"github.com/google/uuid"
	"github.com/myrjola/talespin/internal/config"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/journal"
	"github.com/myrjola/talespin/internal/logging"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

type historyFlags struct {
	playthrough string
	envFile     string
}

func newHistoryCommand() *cobra.Command {
	var flags historyFlags
	cmd := &cobra.Command{
		Use:     "history",
		GroupID: storyGroupID,
		Short:   "List past playthroughs from the journal",
		Long:    `Lists past playthroughs, or every step of one playthrough when --playthrough is given.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.playthrough, "playthrough", "", "ID of the playthrough to show in detail")
	cmd.Flags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with settings")
	return cmd
}

func runHistory(cmd *cobra.Command, flags historyFlags) error {
	var playthroughID uuid.UUID
	if flags.playthrough != "" {
		var err error
		if playthroughID, err = uuid.Parse(flags.playthrough); err != nil {
			return errors.Wrap(err, "parse playthrough ID", slog.String("playthrough", flags.playthrough))
		}
	}
	lookupEnv, err := config.WithDotEnv(os.LookupEnv, flags.envFile)
	if err != nil {
		return errors.Wrap(err, "read dotenv")
	}
	local, err := config.LoadLocal(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger := logging.New(cmd.ErrOrStderr(), local.LogLevel, local.LogFormat)
	ctx := cmd.Context()

	j, err := journal.Open(ctx, local.Journal, logger)
	if err != nil {
		return errors.Wrap(err, "open journal", slog.String("journal", local.Journal))
	}
	defer func() {
		if closeErr := j.Close(ctx); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "close journal", errors.SlogError(closeErr))
		}
	}()

	if playthroughID == uuid.Nil {
		var playthroughs []journal.Playthrough
		if playthroughs, err = j.Playthroughs(ctx); err != nil {
			return errors.Wrap(err, "list playthroughs")
		}
		return writePlaythroughs(cmd.OutOrStdout(), playthroughs)
	}
	var entries []journal.Entry
	if entries, err = j.Entries(ctx, playthroughID); err != nil {
		return errors.Wrap(err, "list entries")
	}
	return writeEntries(cmd.OutOrStdout(), entries)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // two spaces between columns
}

func writePlaythroughs(w io.Writer, playthroughs []journal.Playthrough) error {
	if len(playthroughs) == 0 {
		_, err := fmt.Fprintln(w, "No playthroughs yet.")
		return errors.Wrap(err, "write")
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tTITLE\tGENRE\tPERSONALITY\tPLAYTIME\tSTEPS")
	for _, p := range playthroughs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dm\t%d\n",
			p.ID, p.StartedAt.Local().Format(time.DateTime), p.Title, p.Genre, p.Personality, p.Playtime, p.Entries)
	}
	return errors.Wrap(tw.Flush(), "flush table")
}

func writeEntries(w io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No entries for this playthrough.")
		return errors.Wrap(err, "write")
	}
	tw := newTable(w)
	_, _ = fmt.Fprintln(tw, "RECORDED\tKIND\tSESSION\tSCENE\tSELECTION\tELAPSED\tEMOTION")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%ds\t%s\n",
			e.RecordedAt.Local().Format(time.DateTime), e.Kind, e.SessionID, e.SceneID,
			optionalID(e.SelectionID), e.ElapsedSeconds, dominantEmotion(e.Emotion))
	}
	return errors.Wrap(tw.Flush(), "flush table")
}

func optionalID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

// dominantEmotion names the strongest component, which is enough to skim a transcript.
func dominantEmotion(v *emotion.Vector) string {
	if v == nil {
		return "-"
	}
	components := []struct {
		name  string
		value int
	}{
		{"angry", v.Angry}, {"disgust", v.Disgust}, {"fear", v.Fear}, {"happy", v.Happy},
		{"sad", v.Sad}, {"surprise", v.Surprise}, {"neutral", v.Neutral},
	}
	best := components[len(components)-1]
	for _, c := range components {
		if c.value > best.value {
			best = c
		}
	}
	return fmt.Sprintf("%s %d", best.name, best.value)
}
