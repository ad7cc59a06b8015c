package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/random"
	"log/slog"
	"strings"
)

// syncSchema makes the database match schema, a script of CREATE statements.
//
// The migration is declarative:
//
// 1. Tables missing from schema are dropped,
// 2. new tables are created,
// 3. changed tables are rebuilt with the 12-step procedure from https://www.sqlite.org/lang_altertable.html#otheralter,
// 4. indexes, triggers and views are dropped and recreated wherever they differ.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) syncSchema(ctx context.Context, schema string) (err error) {
	// Foreign keys and attachments are per connection and PRAGMA foreign_keys is ignored inside a transaction, so
	// the whole migration runs on one dedicated connection.
	var conn *sqlx.Conn
	if conn, err = db.ReadWrite.Connx(ctx); err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer func() {
		err = errors.Join(err, errors.Wrap(conn.Close(), "release connection"))
	}()

	// Step 1: Disable foreign key validation temporarily.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	// Step 12: Re-enable foreign key validation.
	defer func() {
		if _, fkErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, errors.Wrap(fkErr, "re-enable foreign key validation"))
		}
	}()

	// Build the target schema in a scratch database so that it can be compared with the current one.
	var targetName string
	if targetName, err = random.Letters(dbNameLength); err != nil {
		return errors.Wrap(err, "generate random ID")
	}
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", targetName)
	var target *sqlx.DB
	if target, err = sqlx.Open("sqlite3", targetDSN); err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close schema target database",
				errors.SlogError(errors.Wrap(closeErr, "close schema target database")))
		}
	}()
	if _, err = target.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create schema target database")
	}
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schema_target", targetDSN); err != nil {
		return errors.Wrap(err, "attach schema target database")
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE schema_target"); detachErr != nil {
			err = errors.Join(err, errors.Wrap(detachErr, "detach schema target database"))
		}
	}()

	// Step 2: Start transaction.
	var tx *sqlx.Tx
	if tx, err = conn.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back schema migration",
				errors.SlogError(rollbackErr))
		}
	}()

	// Steps 3-7.
	if err = db.syncTables(ctx, tx); err != nil {
		return errors.Wrap(err, "synchronize tables")
	}
	// Steps 8-9.
	if err = db.syncSchemaObjects(ctx, tx); err != nil {
		return errors.Wrap(err, "synchronize indexes, triggers and views")
	}

	// Step 10: Check foreign key constraints.
	var violations []foreignKeyViolation
	if err = tx.SelectContext(ctx, &violations, "PRAGMA foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("foreign key violations after migration",
			slog.String("table", violations[0].Table),
			slog.Int("violations", len(violations)))
	}

	// Step 11: Commit transaction from step 2.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

type foreignKeyViolation struct {
	Table  string        `db:"table"`
	RowID  sql.NullInt64 `db:"rowid"`
	Parent string        `db:"parent"`
	FKID   int           `db:"fkid"`
}

type schemaObject struct {
	Type string `db:"type"`
	Name string `db:"name"`
	SQL  string `db:"sql"`
}

type changedTable struct {
	Name       string `db:"name"`
	CurrentSQL string `db:"current_sql"`
	NewSQL     string `db:"new_sql"`
}

func (db *Database) syncTables(ctx context.Context, tx *sqlx.Tx) error {
	var (
		err           error
		deletedTables []string
		newTableSQLs  []string
		changedTables []changedTable
	)

	if err = tx.SelectContext(ctx, &deletedTables, `SELECT current.name
FROM main.sqlite_schema AS current
         LEFT JOIN schema_target.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND target.type IS NULL AND current.name NOT LIKE 'sqlite_%'`); err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deletedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quoteIdentifier(table))); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table))
		}
	}

	if err = tx.SelectContext(ctx, &newTableSQLs, `SELECT target.sql
FROM schema_target.sqlite_schema AS target
         LEFT JOIN main.sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = 'table' AND current.type IS NULL AND target.name NOT LIKE 'sqlite_%'`); err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, newTableSQL := range newTableSQLs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", newTableSQL))
		if _, err = tx.ExecContext(ctx, newTableSQL); err != nil {
			return errors.Wrap(err, "create table")
		}
	}

	if err = tx.SelectContext(ctx, &changedTables, `SELECT current.name AS name,
       current.sql  AS current_sql,
       target.sql   AS new_sql
FROM main.sqlite_schema AS current
         JOIN schema_target.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`); err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, table := range changedTables {
		if err = db.rebuildTable(ctx, tx, table); err != nil {
			return errors.Wrap(err, "rebuild table", slog.String("table", table.Name))
		}
	}
	return nil
}

func (db *Database) rebuildTable(ctx context.Context, tx *sqlx.Tx, table changedTable) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
		slog.String("table", table.Name),
		slog.String("current_sql", table.CurrentSQL),
		slog.String("new_sql", table.NewSQL))

	// Step 4: Create the new table under a temporary name.
	tempName := table.Name + "_migration_temp"
	tempSQL := strings.Replace(table.NewSQL, table.Name, tempName, 1)
	if _, err := tx.ExecContext(ctx, tempSQL); err != nil {
		return errors.Wrap(err, "create temporary table", slog.String("query", tempSQL))
	}

	// Step 5: Copy the columns both versions have.
	var columns []string
	if err := tx.SelectContext(ctx, &columns, `SELECT target.name
FROM pragma_table_info(?1) AS current
         JOIN pragma_table_info(?1, 'schema_target') AS target ON target.name = current.name`,
		table.Name); err != nil {
		return errors.Wrap(err, "query common columns")
	}
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdentifier(c)
		}
		common := strings.Join(quoted, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", //nolint:gosec // identifiers are quoted
			quoteIdentifier(tempName), common, common, quoteIdentifier(table.Name))
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return errors.Wrap(err, "copy data", slog.String("query", copySQL))
		}
	}

	// Step 6: Drop the old table.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quoteIdentifier(table.Name))); err != nil {
		return errors.Wrap(err, "drop old table")
	}

	// Step 7: Rename the new table to the old table's name.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		quoteIdentifier(tempName), quoteIdentifier(table.Name))); err != nil {
		return errors.Wrap(err, "rename new table")
	}
	return nil
}

// syncSchemaObjects recreates the indexes, triggers and views that are missing or differ from the target. Rebuilt
// tables have lost theirs, so they show up as missing here.
func (db *Database) syncSchemaObjects(ctx context.Context, tx *sqlx.Tx) error {
	var (
		err      error
		stale    []schemaObject
		missing  []schemaObject
		objTypes = `('index', 'trigger', 'view')`
	)

	if err = tx.SelectContext(ctx, &stale, `SELECT current.type, current.name, current.sql
FROM main.sqlite_schema AS current
         LEFT JOIN schema_target.sqlite_schema AS target
                   ON current.name = target.name AND current.type = target.type AND current.sql = target.sql
WHERE current.type IN `+objTypes+` AND current.sql IS NOT NULL AND target.name IS NULL`); err != nil {
		return errors.Wrap(err, "query stale objects")
	}
	for _, obj := range stale {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping schema object",
			slog.String("type", obj.Type),
			slog.String("name", obj.Name))
		drop := fmt.Sprintf("DROP %s IF EXISTS %s", strings.ToUpper(obj.Type), quoteIdentifier(obj.Name))
		if _, err = tx.ExecContext(ctx, drop); err != nil {
			return errors.Wrap(err, "drop schema object", slog.String("name", obj.Name))
		}
	}

	if err = tx.SelectContext(ctx, &missing, `SELECT target.type, target.name, target.sql
FROM schema_target.sqlite_schema AS target
         LEFT JOIN main.sqlite_schema AS current
                   ON current.name = target.name AND current.type = target.type AND current.sql = target.sql
WHERE target.type IN `+objTypes+` AND target.sql IS NOT NULL AND current.name IS NULL`); err != nil {
		return errors.Wrap(err, "query missing objects")
	}
	for _, obj := range missing {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating schema object",
			slog.String("type", obj.Type),
			slog.String("name", obj.Name))
		if _, err = tx.ExecContext(ctx, obj.SQL); err != nil {
			return errors.Wrap(err, "create schema object", slog.String("name", obj.Name))
		}
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
