// Package sqlite opens local SQLite databases and keeps their schema in sync with a declarative definition.
package sqlite

import (
	"context"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/random"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // Enable sqlite3 driver
)

const dbNameLength uint = 20

type Database struct {
	ReadWrite *sqlx.DB
	ReadOnly  *sqlx.DB
	logger    *slog.Logger
}

// Open connects to the database at url and synchronizes it with schema.
//
// Writes go through a single connection and reads through a small pool, see
// https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995.
//
// The url parameter is the path to the SQLite database file or ":memory:" for an in-memory database. Every in-memory
// database is private to the returned Database.
func Open(ctx context.Context, url string, schema string, logger *slog.Logger) (*Database, error) {
	var (
		err         error
		readWriteDB *sqlx.DB
		readDB      *sqlx.DB
	)

	// Both pools must see the same in-memory database, which needs shared cache mode under a unique name.
	// See https://www.sqlite.org/inmemorydb.html.
	inMemoryConfig := ""
	if strings.Contains(url, ":memory:") {
		var randomID string
		if randomID, err = random.Letters(dbNameLength); err != nil {
			return nil, errors.Wrap(err, "generate random ID")
		}
		url = randomID
		inMemoryConfig = "&mode=memory&cache=shared"
	}
	commonConfig := strings.Join([]string{
		"_journal_mode=wal",
		// Avoids SQLITE_BUSY errors when the CLI and a history query overlap.
		"_busy_timeout=5000",
		"_synchronous=normal",
		"_foreign_keys=on",
		"_temp_store=memory",
	}, "&")

	// The options prefixed with underscore '_' are SQLite pragmas documented at https://www.sqlite.org/pragma.html.
	// The options without leading underscore are SQLite URI parameters documented at https://www.sqlite.org/uri.html.
	readConfig := fmt.Sprintf("file:%s?mode=ro&_txlock=deferred&_query_only=true&%s%s", url, commonConfig, inMemoryConfig)
	readWriteConfig := fmt.Sprintf("file:%s?mode=rwc&_txlock=immediate&%s%s", url, commonConfig, inMemoryConfig)

	if readWriteDB, err = sqlx.Open("sqlite3", readWriteConfig); err != nil {
		return nil, errors.Wrap(err, "open read-write database")
	}
	readWriteDB.SetMaxOpenConns(1)
	readWriteDB.SetMaxIdleConns(1)
	readWriteDB.SetConnMaxLifetime(time.Hour)
	readWriteDB.SetConnMaxIdleTime(time.Hour)

	db := Database{
		ReadWrite: readWriteDB,
		ReadOnly:  nil,
		logger:    logger.With("source", "sqlite.Database"),
	}

	// The read-only pool can only open the file once the schema has created it.
	if err = db.syncSchema(ctx, schema); err != nil {
		_ = readWriteDB.Close()
		return nil, errors.Wrap(err, "synchronize schema")
	}

	if readDB, err = sqlx.Open("sqlite3", readConfig); err != nil {
		_ = readWriteDB.Close()
		return nil, errors.Wrap(err, "open read database")
	}
	maxReadConns := 4
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)
	readDB.SetConnMaxLifetime(time.Hour)
	readDB.SetConnMaxIdleTime(time.Hour)
	db.ReadOnly = readDB

	return &db, nil
}

// Close optimizes the database and closes both pools.
func (db *Database) Close(ctx context.Context) error {
	db.optimize(ctx)
	return errors.Join(
		errors.Wrap(db.ReadOnly.Close(), "close read database"),
		errors.Wrap(db.ReadWrite.Close(), "close read-write database"),
	)
}
