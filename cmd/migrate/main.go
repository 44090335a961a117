// Kjører db/schema.sql mot databasen. Skjemaet er idempotent
// (CREATE TABLE IF NOT EXISTS), så kommandoen kan kjøres fritt.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	_ "github.com/lib/pq"

	"github.com/jonmartinstorm/repospeiler/internal/logger"
)

func main() {
	logger.SetupLogger()
	ctx := context.Background()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		slog.Error("❌ POSTGRES_DSN ikke satt")
		os.Exit(1)
	}

	schemaPath := os.Getenv("SCHEMA_PATH")
	if schemaPath == "" {
		schemaPath = "db/schema.sql"
	}

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		slog.Error("Kunne ikke lese skjemafila", "path", schemaPath, "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Kunne ikke koble til Postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		slog.Error("Migrering feilet", "error", err)
		os.Exit(1)
	}

	slog.Info("✅ Skjema migrert", "path", schemaPath)
}
