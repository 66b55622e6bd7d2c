package main

import (
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("OVFLEET_DB_DSN"), "postgres connection string")
	path := flag.String("path", "migrations", "migrations directory")
	down := flag.Bool("down", false, "roll back instead of applying")
	steps := flag.Int("steps", 0, "limit to N steps (0 = all)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if *dsn == "" {
		log.Fatal().Msg("dsn required (flag -dsn or OVFLEET_DB_DSN)")
	}

	m, err := migrate.New("file://"+*path, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("migrator init failed")
	}
	defer m.Close()

	switch {
	case *steps != 0:
		n := *steps
		if *down {
			n = -n
		}
		err = m.Steps(n)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("schema already current")
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	version, dirty, _ := m.Version()
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migration complete")
}
