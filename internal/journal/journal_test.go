package journal_test

import (
	"context"
	"github.com/google/uuid"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/journal"
	"github.com/myrjola/talespin/internal/progression"
	"github.com/myrjola/talespin/internal/story"
	"github.com/myrjola/talespin/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
	"time"
)

func newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	ctx := context.Background()
	j, err := journal.Open(ctx, ":memory:", testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, j.Close(ctx))
	})
	return j
}

func created(gameID int64, title string, at time.Time) progression.Event {
	return progression.Event{
		Kind:           progression.EventCreated,
		GameID:         gameID,
		SessionID:      10,
		SceneID:        1,
		SelectionID:    nil,
		Emotion:        nil,
		ElapsedSeconds: 0,
		Title:          title,
		Params:         story.CreateParams{Personality: "brave", Genre: "fantasy", Playtime: 30},
		At:             at,
	}
}

func TestJournalRecordsPlaythrough(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	clock := testhelpers.NewClock()
	require.Equal(t, uuid.Nil, j.Current())

	require.NoError(t, j.Record(ctx, created(100, "The Creaking Gate", clock.Now())))
	playthroughID := j.Current()
	require.NotEqual(t, uuid.Nil, playthroughID)

	clock.Advance(4 * time.Second)
	require.NoError(t, j.Record(ctx, progression.Event{ //nolint:exhaustruct // local advance
		Kind:           progression.EventLocalAdvance,
		GameID:         100,
		SessionID:      10,
		SceneID:        2,
		ElapsedSeconds: 4,
		At:             clock.Now(),
	}))
	clock.Advance(6 * time.Second)
	mood := emotion.Vector{Happy: 75, Neutral: 25}
	selection := int64(2)
	require.NoError(t, j.Record(ctx, progression.Event{ //nolint:exhaustruct // network advance
		Kind:           progression.EventNetworkAdvance,
		GameID:         100,
		SessionID:      11,
		SceneID:        5,
		SelectionID:    &selection,
		Emotion:        &mood,
		ElapsedSeconds: 10,
		At:             clock.Now(),
	}))

	playthroughs, err := j.Playthroughs(ctx)
	require.NoError(t, err)
	require.Len(t, playthroughs, 1)
	p := playthroughs[0]
	require.Equal(t, playthroughID, p.ID)
	require.Equal(t, int64(100), p.GameID)
	require.Equal(t, "The Creaking Gate", p.Title)
	require.Equal(t, "brave", p.Personality)
	require.Equal(t, "fantasy", p.Genre)
	require.Equal(t, 30, p.Playtime)
	require.Equal(t, 3, p.Entries)
	require.WithinDuration(t, testhelpers.NewClock().Now(), p.StartedAt, 0)

	entries, err := j.Entries(ctx, playthroughID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.Equal(t, progression.EventCreated, entries[0].Kind)
	require.Equal(t, int64(1), entries[0].SceneID)
	require.Nil(t, entries[0].Emotion)
	require.Nil(t, entries[0].SelectionID)

	require.Equal(t, progression.EventLocalAdvance, entries[1].Kind)
	require.Equal(t, int64(2), entries[1].SceneID)
	require.Equal(t, int64(4), entries[1].ElapsedSeconds)

	network := entries[2]
	require.Equal(t, progression.EventNetworkAdvance, network.Kind)
	require.Equal(t, int64(11), network.SessionID)
	require.Equal(t, int64(5), network.SceneID)
	require.Equal(t, int64(2), *network.SelectionID)
	require.Equal(t, mood, *network.Emotion)
	require.Equal(t, int64(10), network.ElapsedSeconds)
	require.WithinDuration(t, clock.Now(), network.RecordedAt, 0)
}

func TestJournalListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	clock := testhelpers.NewClock()

	require.NoError(t, j.Record(ctx, created(1, "First", clock.Now())))
	first := j.Current()
	clock.Advance(time.Hour)
	require.NoError(t, j.Record(ctx, created(2, "Second", clock.Now())))
	second := j.Current()
	require.NotEqual(t, first, second)

	playthroughs, err := j.Playthroughs(ctx)
	require.NoError(t, err)
	require.Len(t, playthroughs, 2)
	require.Equal(t, second, playthroughs[0].ID)
	require.Equal(t, first, playthroughs[1].ID)
	require.Equal(t, 1, playthroughs[1].Entries)
}

func TestJournalRejectsOrphanAdvance(t *testing.T) {
	ctx := context.Background()
	j := newJournal(t)
	orphan := progression.Event{ //nolint:exhaustruct // minimal event
		Kind:   progression.EventLocalAdvance,
		GameID: 100,
		At:     time.Now(),
	}
	require.ErrorIs(t, j.Record(ctx, orphan), journal.ErrNoPlaythrough)

	require.NoError(t, j.Record(ctx, created(100, "Game", time.Now())))
	orphan.GameID = 101
	require.ErrorIs(t, j.Record(ctx, orphan), journal.ErrNoPlaythrough)
}

func TestJournalUnknownPlaythrough(t *testing.T) {
	entries, err := newJournal(t).Entries(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestJournalIsAProgressionRecorder(t *testing.T) {
	var _ progression.Recorder = newJournal(t)
}
