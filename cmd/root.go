// Package cmd wires up the feedhaven command tree.
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feedhaven/internal/config"
	"feedhaven/internal/database"
	"feedhaven/internal/discover"
	"feedhaven/internal/favicon"
	"feedhaven/internal/fetch"
	"feedhaven/internal/reader"
	"feedhaven/internal/rss"
	"feedhaven/internal/server"
)

// App builds the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:  "feedhaven",
		Usage: "Aggregate RSS/Atom feeds into a local store",
		Description: `feedhaven subscribes to RSS and Atom feeds, syncs their
		articles into a local database, and serves them over an HTTP API.

		Settings can be provided via environment variables, e.g.:

		--db-dsn => FEEDHAVEN_DB_DSN=feedhaven.db
		--addr  => FEEDHAVEN_ADDR=:8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Usage: "store backend: sqlite or postgres", EnvVars: []string{"FEEDHAVEN_DB_DRIVER"}},
			&cli.StringFlag{Name: "db-dsn", Usage: "sqlite path or postgres connection URL", EnvVars: []string{"FEEDHAVEN_DB_DSN"}},
		},
		Commands: []*cli.Command{
			serveCmd(),
			refreshCmd(),
			addCmd(),
			importCmd(),
			exportCmd(),
		},
		Action: func(ctx *cli.Context) error {
			return cli.ShowAppHelp(ctx)
		},
	}
}

// loadConfig merges the environment config with global CLI flags.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.Context)
	if err != nil {
		return nil, err
	}
	if v := ctx.String("db-driver"); v != "" {
		cfg.DBDriver = v
	}
	if v := ctx.String("db-dsn"); v != "" {
		cfg.DBDSN = v
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (database.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return database.NewPostgres(cfg.DBDSN)
	case "sqlite", "":
		return database.New(cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}

func buildEngine(cfg *config.Config, db database.Store) *rss.Engine {
	parse := fetch.NewParser(fetch.Options{
		Timeout:   cfg.FetchTimeout,
		UserAgent: cfg.UserAgent,
	})
	return rss.NewEngine(db, parse, favicon.New().Lookup, cfg.RefreshConcurrency)
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and the scheduled refresh poller",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address", EnvVars: []string{"FEEDHAVEN_ADDR"}},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if v := ctx.String("addr"); v != "" {
				cfg.Addr = v
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			log.WithField("backend", db.DatabaseType()).Info("store opened")

			engine := buildEngine(cfg, db)
			parse := fetch.NewParser(fetch.Options{Timeout: cfg.FetchTimeout, UserAgent: cfg.UserAgent})
			disc := discover.New(parse, cfg.FetchTimeout, cfg.UserAgent)
			extractor := reader.New(cfg.ExtractTimeout)
			poller := rss.NewPoller(engine, cfg.PollInterval)

			srv := server.New(db, engine, disc, extractor, poller)
			defer srv.Stop()
			return srv.Start(cfg.Addr)
		},
	}
}

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Sync all active feeds once and exit",
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			total, err := buildEngine(cfg, db).RefreshAll(ctx.Context)
			if err != nil {
				return err
			}
			fmt.Printf("%d new articles\n", total)
			return nil
		},
	}
}

func addCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Subscribe to a feed URL",
		ArgsUsage: "<url>",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return fmt.Errorf("expected exactly one URL argument")
			}
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			feed, err := buildEngine(cfg, db).AddFeed(ctx.Context, ctx.Args().First(), nil)
			if err != nil {
				return err
			}
			fmt.Printf("added %s (%s)\n", feed.Title, feed.URL)
			return nil
		},
	}
}

func importCmd() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import subscriptions from an OPML file",
		ArgsUsage: "<file>",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return fmt.Errorf("expected an OPML file argument")
			}
			file, err := os.Open(ctx.Args().First())
			if err != nil {
				return err
			}
			defer file.Close()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := buildEngine(cfg, db).ImportOPML(ctx.Context, file)
			if err != nil {
				return err
			}
			fmt.Printf("imported %d, skipped %d of %d feeds\n", result.Imported, result.Skipped, result.Total)
			for _, msg := range result.Errors {
				fmt.Fprintf(os.Stderr, "error: %s\n", msg)
			}
			return nil
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export subscriptions as OPML to a file or stdout",
		ArgsUsage: "[file]",
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := buildEngine(cfg, db).ExportOPML()
			if err != nil {
				return err
			}
			if ctx.NArg() == 0 {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(ctx.Args().First(), data, 0o644)
		},
	}
}
