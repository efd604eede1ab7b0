package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/pedidos/internal/storage/postgres"
)

const (
	envPostgresDSN = "OMS_POSTGRES_DSN"
	defaultTimeout = 30 * time.Second
)

var errDSNRequired = errors.New(envPostgresDSN + " (or -dsn) is required")

type command string

const (
	commandUp     command = "up"
	commandDown   command = "down"
	commandStatus command = "status"
)

type config struct {
	command command
	steps   int
	dsn     string
	timeout time.Duration
}

// migrationStore покрывает то, что утилите нужно от postgres.Store.
type migrationStore interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	Migrations(ctx context.Context) ([]postgres.MigrationInfo, error)
	Close() error
}

var openStore = func(ctx context.Context, dsn string) (migrationStore, error) {
	return postgres.Open(ctx, dsn)
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if err := run(ctx, os.Stdout, cfg); err != nil {
		cancel()
		fail("%v", err)
	}
}

func parseConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)

	var (
		cfg       config
		direction string
	)
	fs.StringVar(&direction, "direction", string(commandUp), "up|down|status")
	fs.IntVar(&cfg.steps, "steps", 0, "migrations to apply (0 = all) or roll back (0 = 1)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.command = command(strings.ToLower(strings.TrimSpace(direction)))
	switch cfg.command {
	case commandUp, commandDown, commandStatus:
	default:
		return config{}, fmt.Errorf("unsupported direction %q (use up|down|status)", direction)
	}
	if cfg.steps < 0 {
		return config{}, errors.New("-steps must be >= 0")
	}
	if cfg.timeout <= 0 {
		return config{}, errors.New("-timeout must be > 0")
	}

	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.dsn == "" {
		if v, ok := lookup(envPostgresDSN); ok {
			cfg.dsn = strings.TrimSpace(v)
		}
	}
	if cfg.dsn == "" {
		return config{}, errDSNRequired
	}
	return cfg, nil
}

// run выполняет одну команду и печатает итоговую версию схемы.
func run(ctx context.Context, out io.Writer, cfg config) error {
	store, err := openStore(ctx, cfg.dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer store.Close()

	switch cfg.command {
	case commandUp:
		err = store.MigrateUp(ctx, cfg.steps)
	case commandDown:
		err = store.MigrateDown(ctx, max(cfg.steps, 1))
	case commandStatus:
		err = printMigrations(ctx, out, store)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.command, err)
	}

	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", cfg.command, version, applied)
	return nil
}

func printMigrations(ctx context.Context, out io.Writer, store migrationStore) error {
	migrations, err := store.Migrations(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, m := range migrations {
		state := "pending"
		if m.Applied {
			state = "applied " + m.AppliedAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%04d\t%s\t%s\n", m.Version, m.Name, state)
	}
	return tw.Flush()
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
