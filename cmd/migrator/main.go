package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/matchday/db"
	"github.com/gokatarajesh/matchday/internal/config"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, status or version")
		dir     = flag.String("dir", "", "Directory containing migration files (defaults to the embedded set)")
		envFile = flag.String("env", "configs/.env", "Optional .env file loaded outside production")
	)
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("app", "matchday-migrator").Logger()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Warn().Err(err).Str("file", *envFile).Msg("could not load .env file")
		}
	}

	pg, err := config.LoadPostgres()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database configuration")
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode)

	// pgx via stdlib so goose gets a database/sql handle
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal().Err(err).Str("host", pg.Host).Int("port", pg.Port).Msg("failed to open database connection")
	}
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	migrationDir := "migrations"
	if *dir != "" {
		migrationDir = *dir
		goose.SetBaseFS(nil)
	} else {
		goose.SetBaseFS(db.Migrations)
	}
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("failed to set goose dialect")
	}

	log.Info().
		Str("host", pg.Host).
		Str("database", pg.Database).
		Str("migration_dir", migrationDir).
		Msg("connected to database")

	ctx := context.Background()
	switch *command {
	case "up":
		if err := goose.UpContext(ctx, conn, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations up")
		}
		log.Info().Msg("migrations applied successfully")

	case "down":
		if err := goose.DownContext(ctx, conn, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations down")
		}
		log.Info().Msg("migrations rolled back successfully")

	case "status":
		if err := goose.StatusContext(ctx, conn, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to get migration status")
		}

	case "version":
		if err := goose.VersionContext(ctx, conn, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to get migration version")
		}

	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, status or version")
	}
}
