// Package db mirrors the ignition records into DuckDB for ad hoc SQL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-fire/internal/ignition"
	"github.com/joeblew999/plat-fire/internal/popup"
)

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir    string
	DBName     string
	Extensions []string
	// Sealed turns off DuckDB's external access so SQL cannot read or write
	// files outside the database. Extensions cannot be installed when set.
	Sealed bool
	Log    logrus.FieldLogger
}

// Open opens a new DuckDB connection and loads the configured extensions.
// Extensions that fail to load are logged and skipped.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DataDir != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "firemap"
		}
		dsn = filepath.Join(dir, name+".duckdb")
	}

	if cfg.Sealed {
		dsn += "?enable_external_access=false"
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	for _, ext := range cfg.Extensions {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			log.WithField("extension", ext).WithError(err).Warn("duckdb extension not loaded")
		}
	}
	return conn, nil
}

// IgnitionsTable is the table ImportIgnitions writes.
const IgnitionsTable = "ignitions"

const createIgnitions = `CREATE OR REPLACE TABLE ignitions (
	year         INTEGER NOT NULL,
	lat          DOUBLE  NOT NULL,
	lng          DOUBLE  NOT NULL,
	alert_at     TIMESTAMP,
	duration     VARCHAR,
	municipality VARCHAR,
	parish       VARCHAR,
	cause_type   VARCHAR,
	description  VARCHAR
)`

// ImportIgnitions replaces the ignitions table with every indexed ignition
// in the year range and returns the number of rows written.
func ImportIgnitions(ctx context.Context, conn *sql.DB, ix *ignition.Index) (int, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createIgnitions); err != nil {
		return 0, fmt.Errorf("creating %s: %w", IgnitionsTable, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ignitions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for _, year := range ix.Years() {
		for _, ig := range ix.ForYear(year) {
			var alertAt sql.NullTime
			if t, ok := popup.ParseTime(ig.Properties["DataHoraAl"]); ok {
				alertAt = sql.NullTime{Time: t, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				ig.Year, ig.Point.Lat(), ig.Point.Lon(), alertAt,
				text(ig.Properties, "hora_dura"),
				text(ig.Properties, "Concelho", "concelho"),
				text(ig.Properties, "Freguesia", "freguesia"),
				text(ig.Properties, "TipoCausa"),
				text(ig.Properties, "DescricaoC"),
			)
			if err != nil {
				return n, fmt.Errorf("inserting ignition: %w", err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// text returns the first present attribute of keys as a nullable string.
func text(props map[string]any, keys ...string) sql.NullString {
	for _, k := range keys {
		if s, ok := popup.Value(props[k]); ok {
			return sql.NullString{String: s, Valid: true}
		}
	}
	return sql.NullString{}
}
