// Package journal keeps a local transcript of every story played, one playthrough per created game.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/myrjola/talespin/internal/emotion"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/progression"
	"github.com/myrjola/talespin/internal/sqlite"
	"log/slog"
	"sync"
	"time"

	_ "embed"
)

//go:embed schema.sql
var schema string

// ErrNoPlaythrough is returned when an advance is recorded before the game it belongs to was created.
var ErrNoPlaythrough = errors.NewSentinel("no playthrough in progress")

type Playthrough struct {
	ID          uuid.UUID `db:"id"`
	GameID      int64     `db:"game_id"`
	Title       string    `db:"title"`
	Personality string    `db:"personality"`
	Genre       string    `db:"genre"`
	Playtime    int       `db:"playtime"`
	StartedAt   time.Time `db:"started_at"`
	// Entries counts the recorded transitions.
	Entries int `db:"entries"`
}

type Entry struct {
	ID             int64
	Kind           progression.EventKind
	SessionID      int64
	SceneID        int64
	SelectionID    *int64
	Emotion        *emotion.Vector
	ElapsedSeconds int64
	RecordedAt     time.Time
}

type entryRow struct {
	ID             int64          `db:"id"`
	Kind           string         `db:"kind"`
	SessionID      int64          `db:"session_id"`
	SceneID        int64          `db:"scene_id"`
	SelectionID    sql.NullInt64  `db:"selection_id"`
	Emotion        sql.NullString `db:"emotion"`
	ElapsedSeconds int64          `db:"elapsed_seconds"`
	RecordedAt     time.Time      `db:"recorded_at"`
}

// Journal records progression events. It implements [progression.Recorder].
type Journal struct {
	db     *sqlite.Database
	logger *slog.Logger

	mu            sync.Mutex
	current       uuid.UUID
	currentGameID int64
}

// Open opens the journal stored at url, or a fresh private one for ":memory:".
func Open(ctx context.Context, url string, logger *slog.Logger) (*Journal, error) {
	db, err := sqlite.Open(ctx, url, schema, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open journal database", slog.String("url", url))
	}
	return &Journal{ //nolint:exhaustruct // no playthrough yet
		db:     db,
		logger: logger.With("source", "Journal"),
	}, nil
}

func (j *Journal) Close(ctx context.Context) error {
	return j.db.Close(ctx)
}

// Current returns the ID of the playthrough that advances are appended to, or uuid.Nil.
func (j *Journal) Current() uuid.UUID {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current
}

// Record stores event. A created event starts a new playthrough, every other event is appended to it.
func (j *Journal) Record(ctx context.Context, event progression.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if event.Kind == progression.EventCreated {
		id := uuid.New()
		stmt := `INSERT INTO playthroughs (id, game_id, title, personality, genre, playtime, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err := j.db.ReadWrite.ExecContext(ctx, stmt,
			id.String(), event.GameID, event.Title, event.Params.Personality, event.Params.Genre,
			event.Params.Playtime, event.At.UTC()); err != nil {
			return errors.Wrap(err, "insert playthrough", slog.Int64("game_id", event.GameID))
		}
		j.current = id
		j.currentGameID = event.GameID
		j.logger.LogAttrs(ctx, slog.LevelDebug, "playthrough started", slog.String("playthrough_id", id.String()))
	}

	if j.current == uuid.Nil || j.currentGameID != event.GameID {
		return errors.Wrap(ErrNoPlaythrough, "record entry",
			slog.Int64("game_id", event.GameID),
			slog.String("kind", string(event.Kind)))
	}

	var emotionJSON sql.NullString
	if event.Emotion != nil {
		b, err := json.Marshal(event.Emotion)
		if err != nil {
			return errors.Wrap(err, "marshal emotion")
		}
		emotionJSON = sql.NullString{String: string(b), Valid: true}
	}
	var selectionID sql.NullInt64
	if event.SelectionID != nil {
		selectionID = sql.NullInt64{Int64: *event.SelectionID, Valid: true}
	}
	stmt := `INSERT INTO entries (playthrough_id, kind, session_id, scene_id, selection_id, emotion, elapsed_seconds,
                     recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := j.db.ReadWrite.ExecContext(ctx, stmt,
		j.current.String(), string(event.Kind), event.SessionID, event.SceneID, selectionID, emotionJSON,
		event.ElapsedSeconds, event.At.UTC()); err != nil {
		return errors.Wrap(err, "insert entry", slog.String("playthrough_id", j.current.String()))
	}
	return nil
}

// Playthroughs lists every playthrough, the most recently started first.
func (j *Journal) Playthroughs(ctx context.Context) ([]Playthrough, error) {
	var playthroughs []Playthrough
	stmt := `SELECT p.id, p.game_id, p.title, p.personality, p.genre, p.playtime, p.started_at,
       (SELECT count(*) FROM entries e WHERE e.playthrough_id = p.id) AS entries
FROM playthroughs p
ORDER BY p.started_at DESC, p.rowid DESC`
	if err := j.db.ReadOnly.SelectContext(ctx, &playthroughs, stmt); err != nil {
		return nil, errors.Wrap(err, "select playthroughs")
	}
	return playthroughs, nil
}

// Entries returns the transcript of one playthrough in the order it was played.
func (j *Journal) Entries(ctx context.Context, playthroughID uuid.UUID) ([]Entry, error) {
	var rows []entryRow
	stmt := `SELECT id, kind, session_id, scene_id, selection_id, emotion, elapsed_seconds, recorded_at
FROM entries
WHERE playthrough_id = ?
ORDER BY id`
	if err := j.db.ReadOnly.SelectContext(ctx, &rows, stmt, playthroughID.String()); err != nil {
		return nil, errors.Wrap(err, "select entries", slog.String("playthrough_id", playthroughID.String()))
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{
			ID:             row.ID,
			Kind:           progression.EventKind(row.Kind),
			SessionID:      row.SessionID,
			SceneID:        row.SceneID,
			SelectionID:    nil,
			Emotion:        nil,
			ElapsedSeconds: row.ElapsedSeconds,
			RecordedAt:     row.RecordedAt,
		}
		if row.SelectionID.Valid {
			id := row.SelectionID.Int64
			entry.SelectionID = &id
		}
		if row.Emotion.Valid {
			var v emotion.Vector
			if err := json.Unmarshal([]byte(row.Emotion.String), &v); err != nil {
				return nil, errors.Wrap(err, "unmarshal emotion", slog.Int64("entry_id", row.ID))
			}
			entry.Emotion = &v
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
