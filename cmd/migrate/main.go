// Command migrate manages the coinledger database schema. The migration
// files are embedded in the binary, so the tool only needs a database URL.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumastream/coinledger/internal/database"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	databaseURL := flag.String("database", os.Getenv("DATABASE_URL"), "database URL (defaults to DATABASE_URL)")
	steps := flag.Int("steps", 0, "number of migrations to apply (0 means all; down defaults to 1)")
	flag.Usage = usage
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal().Msg("A database URL is required (-database or DATABASE_URL)")
	}

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	m, err := database.NewMigrator(*databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open migrator")
	}
	defer m.Close()

	switch command {
	case "up":
		err = up(m, *steps)
	case "down":
		n := *steps
		if n == 0 {
			n = 1
		}
		err = m.Steps(-n)
	case "version":
		reportVersion(m)
		return
	case "force":
		if *steps <= 0 {
			log.Fatal().Msg("force needs the target version in -steps")
		}
		err = m.Force(*steps)
	case "drop":
		err = m.Drop()
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("Schema already up to date")
			return
		}
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}

	log.Info().Str("command", command).Msg("Schema change applied")
}

func up(m *migrate.Migrate, steps int) error {
	if steps > 0 {
		return m.Steps(steps)
	}
	return m.Up()
}

func reportVersion(m *migrate.Migrate) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migrations applied yet")
			return
		}
		log.Fatal().Err(err).Msg("Failed to read schema version")
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
}

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), `Usage: migrate [flags] [command]

Commands:
  up       apply pending migrations (default)
  down     roll back migrations (-steps, default 1)
  version  print the current schema version
  force    mark the schema version given in -steps without running anything
  drop     drop everything in the database

Flags:
`)
	flag.PrintDefaults()
}
