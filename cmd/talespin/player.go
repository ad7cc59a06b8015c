package main

import (
	"bufio"
	"context"
	"fmt"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/progression"
	"github.com/myrjola/talespin/internal/story"
	"io"
	"slices"
	"strconv"
	"strings"
)

// player drives an engine from line-based terminal input.
type player struct {
	engine *progression.Engine
	mood   *emotion.Tracker
	in     *bufio.Scanner
	out    io.Writer
	paused bool
}

func newPlayer(engine *progression.Engine, mood *emotion.Tracker, in io.Reader, out io.Writer) *player {
	return &player{
		engine: engine,
		mood:   mood,
		in:     bufio.NewScanner(in),
		out:    out,
		paused: false,
	}
}

// play creates a game and reads commands until the player quits, the input ends or ctx is cancelled.
func (p *player) play(ctx context.Context, params story.CreateParams) error {
	p.println("Creating your story...")
	state, err := p.engine.CreateGame(ctx, params)
	if err != nil {
		p.printf("! %s\n", state.Error)
		return errors.Wrap(err, "create game")
	}
	p.printf("\n== %s ==\n", state.Title)
	p.render(state)

	for p.in.Scan() {
		if p.handle(ctx, strings.TrimSpace(p.in.Text())) || ctx.Err() != nil {
			break
		}
	}
	p.engine.ResetGame()
	if err = p.in.Err(); err != nil {
		return errors.Wrap(err, "read input")
	}
	p.println("Goodbye.")
	return nil
}

// handle runs one command and reports whether the player wants to stop.
func (p *player) handle(ctx context.Context, line string) bool {
	switch {
	case line == "q":
		return true
	case line == "p":
		p.togglePause()
	case line == "m" || strings.HasPrefix(line, "m "):
		p.setMood(strings.TrimSpace(strings.TrimPrefix(line, "m")))
	case line == "":
		p.advance(p.engine.AdvanceDialogue(ctx, p.currentMood()))
	default:
		selectionID, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			p.println(`Press Enter to continue, type a choice number, "p" to pause, "m <emotion>" or "q" to quit.`)
			return false
		}
		p.advance(p.engine.AdvanceSelection(ctx, selectionID, p.currentMood()))
	}
	return false
}

func (p *player) advance(state progression.State, err error) {
	if err != nil {
		p.printf("! %s\n", state.Error)
		return
	}
	p.render(state)
}

func (p *player) togglePause() {
	if p.paused {
		p.engine.Resume()
		p.println("Resumed.")
	} else {
		p.engine.Pause()
		p.printf("Paused after %ds of play.\n", p.engine.ElapsedSeconds())
	}
	p.paused = !p.paused
}

func (p *player) setMood(label string) {
	if label == "" {
		p.mood.Observe(nil)
		p.println("Mood cleared.")
		return
	}
	p.mood.Observe(&emotion.Observation{Label: label, Confidence: 1})
	if p.mood.Latest() == emotion.Default() && !strings.EqualFold(label, "neutral") {
		p.printf("Unknown emotion %q, treating you as neutral.\n", label)
		return
	}
	p.printf("Mood set to %s.\n", label)
}

func (p *player) currentMood() *emotion.Vector {
	v := p.mood.Latest()
	return &v
}

func (p *player) render(state progression.State) {
	scene := state.CurrentScene()
	if scene == nil {
		return
	}
	p.println()
	if scene.Dialogue != nil {
		if scene.Role != "" {
			p.printf("%s: %s\n", scene.Role, *scene.Dialogue)
		} else {
			p.println(*scene.Dialogue)
		}
	}
	if scene.Type != story.SceneTypeSelection {
		p.println("[Enter]")
		return
	}
	if !state.HasChoices() || len(scene.Selections) == 0 {
		p.println("(no choices offered)")
		return
	}
	for _, id := range sortedChoiceIDs(scene.Selections) {
		p.printf("  %s) %s\n", id, scene.Selections[id])
	}
}

// sortedChoiceIDs orders numeric IDs numerically and anything else after them.
func sortedChoiceIDs(selections map[string]string) []string {
	ids := make([]string, 0, len(selections))
	for id := range selections {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		na, errA := strconv.ParseInt(a, 10, 64)
		nb, errB := strconv.ParseInt(b, 10, 64)
		switch {
		case errA == nil && errB == nil && na != nb:
			if na < nb {
				return -1
			}
			return 1
		case errA == nil && errB != nil:
			return -1
		case errA != nil && errB == nil:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return ids
}

func (p *player) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *player) println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}
