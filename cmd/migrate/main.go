package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/VictorLirio/nimbus-api/internal/adapters/database"
	"github.com/VictorLirio/nimbus-api/internal/db/migrations"
)

var flags = flag.NewFlagSet("migrate", flag.ExitOnError)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		return
	}

	command := args[0]

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		port := 5432
		if _, err := fmt.Sscanf(getEnv("DB_PORT", "5432"), "%d", &port); err != nil {
			log.Fatalf("invalid DB_PORT: %v", err)
		}
		dsn = database.BuildDatabaseURL(
			getEnv("DB_HOST", "localhost"),
			port,
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", "postgres"),
			getEnv("DB_NAME", "nimbus_billing"),
			getEnv("DB_SSL_MODE", "disable"),
		)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := migrations.Run(context.Background(), db, command, args[1:]...); err != nil {
		log.Fatalf("%v", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func usage() {
	fmt.Print(`Usage: migrate COMMAND

Migrations are embedded in the binary.

Commands:
    up                   Migrate the DB to the most recent version available
    up-by-one            Migrate the DB up by 1
    up-to VERSION        Migrate the DB to a specific VERSION
    down                 Roll back the version by 1
    down-to VERSION      Roll back to a specific VERSION
    redo                 Re-run the latest migration
    reset                Roll back all migrations
    status               Dump the migration status for the current DB
    version              Print the current version of the database

Environment:
    DATABASE_URL, or DB_HOST DB_PORT DB_USER DB_PASSWORD DB_NAME DB_SSL_MODE
`)
}
