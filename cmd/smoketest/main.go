package main

import (
	"context"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/logging"
	"github.com/myrjola/talespin/internal/progression"
	"github.com/myrjola/talespin/internal/story"
	"github.com/myrjola/talespin/internal/transport"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"
)

// TestStory creates a short story and plays it until the backend has been asked for the next batch once.
func TestStory(ctx context.Context, engine *progression.Engine) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute) //nolint:mnd // story generation is slow
	defer cancel()

	state, err := engine.CreateGame(ctx, story.CreateParams{Personality: "curious", Genre: "mystery", Playtime: 5})
	if err != nil {
		return errors.Wrap(err, "create game")
	}
	firstSession := *state.SessionID
	neutral := emotion.Default()
	for *state.SessionID == firstSession {
		scene := state.CurrentScene()
		if scene == nil {
			return errors.New("no scene to show")
		}
		if scene.Type == story.SceneTypeSelection && len(scene.Selections) > 0 {
			state, err = engine.AdvanceSelection(ctx, firstChoice(scene), &neutral)
		} else {
			state, err = engine.AdvanceDialogue(ctx, &neutral)
		}
		if err != nil {
			return errors.Wrap(err, "advance", slog.Int64("scene_id", scene.ID))
		}
	}
	engine.ResetGame()
	return nil
}

func firstChoice(scene *story.Scene) int64 {
	first := int64(math.MaxInt64)
	for key := range scene.Selections {
		if id, err := strconv.ParseInt(key, 10, 64); err == nil && id < first {
			first = id
		}
	}
	return first
}

func main() {
	logger := logging.New(os.Stdout, "debug", "text")
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only the base URL to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <base-url>")
		os.Exit(1)
	}

	baseURL := os.Args[1]
	ctx = logging.WithAttrs(ctx, slog.String("base_url", baseURL))
	client := transport.NewClient(baseURL, logger, transport.WithToken(os.Getenv("TALESPIN_TOKEN")))
	engine := progression.New(client, logger)

	if err := TestStory(ctx, engine); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing story", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
