package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var embeddedMigrations embed.FS

const (
	migrationsDir = "sql/migrations"

	// ключ pg_advisory_lock, общий для всех экземпляров мигратора
	migrationLockID = int64(0x7065646964) // "pedid"

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var errNoMigrations = errors.New("no migration files found")

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

// schemaMigration задаёт пару up/down скриптов одной версии схемы.
type schemaMigration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m schemaMigration) label() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

func (m schemaMigration) script(direction migrationDirection) string {
	if direction == migrationDown {
		return m.down
	}
	return m.up
}

// MigrationInfo описывает встроенную миграцию и её состояние в базе.
type MigrationInfo struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// MigrateUp применяет ещё не применённые миграции по возрастанию версии.
// steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает последние применённые миграции. steps<=0 считается одним шагом.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus возвращает максимальную применённую версию и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, 0, err
	}

	var latest int64
	for version := range applied {
		latest = max(latest, version)
	}
	return latest, len(applied), nil
}

// Migrations перечисляет встроенные миграции с отметкой о применении.
func (s *Store) Migrations(ctx context.Context) ([]MigrationInfo, error) {
	known, err := readMigrations(embeddedMigrations)
	if err != nil {
		return nil, err
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]MigrationInfo, len(known))
	for i, m := range known {
		at, ok := applied[m.version]
		infos[i] = MigrationInfo{Version: m.version, Name: m.name, Applied: ok, AppliedAt: at}
	}
	return infos, nil
}

func (s *Store) appliedMigrations(ctx context.Context) (map[int64]time.Time, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}

	queryCtx, cancel := opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return scanApplied(queryCtx, s.db)
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction %q", direction)
	}

	known, err := readMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	unlock, err := lockMigrations(ctx, conn)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := scanApplied(ctx, conn)
	if err != nil {
		return err
	}

	for _, m := range planMigrations(known, applied, direction, steps) {
		if err := runMigration(ctx, conn, m, direction); err != nil {
			return err
		}
	}
	return nil
}

// lockMigrations берёт сессионный advisory lock, чтобы параллельные миграторы не пересекались.
func lockMigrations(ctx context.Context, conn *sql.Conn) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}, nil
}

// planMigrations выбирает миграции для шага: для up ещё не применённые по возрастанию,
// для down применённые по убыванию. steps<=0 снимает ограничение.
func planMigrations(known []schemaMigration, applied map[int64]time.Time, direction migrationDirection, steps int) []schemaMigration {
	var plan []schemaMigration
	for _, m := range known {
		_, done := applied[m.version]
		if done == (direction == migrationDown) {
			plan = append(plan, m)
		}
	}
	if direction == migrationDown {
		slices.Reverse(plan)
	}
	if steps > 0 && len(plan) > steps {
		plan = plan[:steps]
	}
	return plan
}

func runMigration(ctx context.Context, conn *sql.Conn, m schemaMigration, direction migrationDirection) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.label(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.script(direction)); err != nil {
		return fmt.Errorf("%s migration %s: %w", direction, m.label(), err)
	}

	if direction == migrationUp {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}
	return nil
}

func scanApplied(ctx context.Context, q querier) (map[int64]time.Time, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]time.Time)
	for rows.Next() {
		var (
			version int64
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

// readMigrations собирает миграции из файлов вида NNNN_name.up.sql / NNNN_name.down.sql.
func readMigrations(fsys fs.FS) ([]schemaMigration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errNoMigrations
		}
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*schemaMigration)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		version, name, direction, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		m, ok := byVersion[version]
		switch {
		case !ok:
			m = &schemaMigration{version: version, name: name}
			byVersion[version] = m
		case m.name != name:
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, m.name, name)
		}

		target := &m.up
		if direction == migrationDown {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s script for migration %d", direction, version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errNoMigrations
	}

	migrations := make([]schemaMigration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down scripts", m.label())
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b schemaMigration) int { return cmp.Compare(a.version, b.version) })
	return migrations, nil
}

func parseMigrationName(file string) (int64, string, migrationDirection, error) {
	stem, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", "", fmt.Errorf("invalid migration file name %q", file)
	}
	dot := strings.LastIndexByte(stem, '.')
	if dot < 0 {
		return 0, "", "", fmt.Errorf("migration %q has no direction suffix", file)
	}
	direction := migrationDirection(stem[dot+1:])
	if direction != migrationUp && direction != migrationDown {
		return 0, "", "", fmt.Errorf("migration %q has unknown direction %q", file, direction)
	}

	rawVersion, name, ok := strings.Cut(stem[:dot], "_")
	if !ok || name == "" || !validMigrationName(name) {
		return 0, "", "", fmt.Errorf("invalid migration file name %q", file)
	}
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("invalid migration version in %q", file)
	}
	return version, name, direction, nil
}

func validMigrationName(name string) bool {
	for _, r := range name {
		if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
