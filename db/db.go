package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS setpoint (
	id INTEGER PRIMARY KEY CHECK(id=1),
	value_f REAL NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at TEXT NOT NULL,
	raw INTEGER NOT NULL,
	volts REAL NOT NULL,
	ohms REAL NOT NULL,
	temp_c REAL NOT NULL,
	status TEXT NOT NULL,
	direction TEXT,
	output REAL,
	clamped BOOLEAN DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS readings_taken_at ON readings (taken_at);
`

// Open opens (creating if needed) the database at dbPath and applies the schema.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbConn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; one connection keeps :memory: databases coherent too
	dbConn.SetMaxOpenConns(1)

	if err := ApplySchema(dbConn); err != nil {
		dbConn.Close()
		return nil, err
	}

	log.Debug().Str("path", dbPath).Msg("Database ready")
	return dbConn, nil
}

func ApplySchema(dbConn *sql.DB) error {
	if _, err := dbConn.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
