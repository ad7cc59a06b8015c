package main

import (
	"context"
	"github.com/myrjola/talespin/internal/config"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/journal"
	"github.com/myrjola/talespin/internal/logging"
	"github.com/myrjola/talespin/internal/pprofserver"
	"github.com/myrjola/talespin/internal/progression"
	"github.com/myrjola/talespin/internal/story"
	"github.com/myrjola/talespin/internal/transport"
	"github.com/spf13/cobra"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const (
	minPlaytime = 5
	maxPlaytime = 180
)

type playFlags struct {
	personality string
	genre       string
	playtime    int
	mood        string
	envFile     string
}

func newPlayCommand() *cobra.Command {
	var flags playFlags
	cmd := &cobra.Command{
		Use:     "play",
		GroupID: storyGroupID,
		Short:   "Start a new story",
		Long: `Starts a new story and plays it in the terminal.

Press Enter to continue a dialogue, type a number to pick a choice, "p" to pause the clock,
"m <emotion>" to tell the story how you feel and "q" to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.personality, "personality", "", "personality of the protagonist")
	cmd.Flags().StringVar(&flags.genre, "genre", "", "genre of the story")
	cmd.Flags().IntVar(&flags.playtime, "playtime", 30, "intended playtime in minutes") //nolint:mnd // half an hour
	cmd.Flags().StringVar(&flags.mood, "mood", "", "starting emotion such as happy or sad")
	cmd.Flags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with settings")
	_ = cmd.MarkFlagRequired("personality")
	_ = cmd.MarkFlagRequired("genre")
	return cmd
}

var errInvalidFlags = errors.NewSentinel("invalid flags")

func (f playFlags) validate() error {
	var errs []error
	if strings.TrimSpace(f.personality) == "" {
		errs = append(errs, errors.Wrap(errInvalidFlags, "personality must not be empty"))
	}
	if strings.TrimSpace(f.genre) == "" {
		errs = append(errs, errors.Wrap(errInvalidFlags, "genre must not be empty"))
	}
	if f.playtime < minPlaytime || f.playtime > maxPlaytime {
		errs = append(errs, errors.Wrap(errInvalidFlags, "playtime must be between 5 and 180 minutes",
			slog.Int("playtime", f.playtime), slog.Int("min", minPlaytime), slog.Int("max", maxPlaytime)))
	}
	return errors.Join(errs...)
}

func runPlay(cmd *cobra.Command, flags playFlags) error {
	if err := flags.validate(); err != nil {
		return err
	}
	lookupEnv, err := config.WithDotEnv(os.LookupEnv, flags.envFile)
	if err != nil {
		return errors.Wrap(err, "read dotenv")
	}
	cfg, err := config.Load(lookupEnv)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PprofAddr != "" {
		if _, err = pprofserver.Launch(ctx, cfg.PprofAddr, logger); err != nil {
			return errors.Wrap(err, "launch pprof server")
		}
	}

	j, err := journal.Open(ctx, cfg.Journal, logger)
	if err != nil {
		return errors.Wrap(err, "open journal", slog.String("journal", cfg.Journal))
	}
	defer func() {
		// The play context may already be cancelled here.
		if closeErr := j.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "close journal", errors.SlogError(closeErr))
		}
	}()

	client := transport.NewClient(cfg.BaseURL, logger,
		transport.WithHTTPClient(cfg.HTTPClient()),
		transport.WithToken(cfg.Token),
	)
	engine := progression.New(client, logger,
		progression.WithRetryPolicy(cfg.RetryPolicy()),
		progression.WithRecorder(j),
	)

	var mood emotion.Tracker
	if flags.mood != "" {
		mood.Observe(&emotion.Observation{Label: flags.mood, Confidence: 1})
	}

	p := newPlayer(engine, &mood, cmd.InOrStdin(), cmd.OutOrStdout())
	return p.play(ctx, story.CreateParams{
		Personality: strings.TrimSpace(flags.personality),
		Genre:       strings.TrimSpace(flags.genre),
		Playtime:    flags.playtime,
	})
}
