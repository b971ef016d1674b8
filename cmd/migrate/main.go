// The migrate binary drives schema migrations: up, down, status, version
// and create. Migration files live in migrations/ in golang-migrate
// format (NNNN_name.up.sql / NNNN_name.down.sql).
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/bidwire/auction-exchange-backend/internal/infrastructure/config"
)

func main() {
	var (
		action = flag.String("action", "up", "up, down, status, version or create")
		steps  = flag.Int("steps", 0, "number of migrations to apply (0 = all for up, 1 for down)")
		dir    = flag.String("dir", "migrations", "migrations directory")
		name   = flag.String("name", "", "migration name (create only)")
	)
	flag.Parse()

	if err := run(*action, *steps, *dir, *name); err != nil {
		slog.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}
}

func run(action string, steps int, dir, name string) error {
	if action == "create" {
		if name == "" {
			return errors.New("migration name is required for create")
		}
		return create(dir, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps <= 0 {
			steps = 1
		}
		err = m.Steps(-steps)
	case "status":
		return status(m, dir)
	case "version":
		return version(m)
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("database is up to date")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("migrations applied", "action", action)
	return nil
}

func version(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("version: %d dirty: %t\n", v, dirty)
	return nil
}

func status(m *migrate.Migrate, dir string) error {
	current, dirty, verr := m.Version()
	noneApplied := errors.Is(verr, migrate.ErrNilVersion)
	if verr != nil && !noneApplied {
		return verr
	}

	files, err := listMigrations(dir)
	if err != nil {
		return err
	}

	for _, f := range files {
		mark := " "
		if !noneApplied && f.seq <= uint64(current) {
			mark = "x"
		}
		fmt.Printf("[%s] %s\n", mark, f.name)
	}
	if dirty {
		fmt.Printf("warning: version %d is dirty\n", current)
	}
	return nil
}

// upPattern matches golang-migrate up files: NNNN_name.up.sql.
var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

type migrationFile struct {
	seq  uint64
	name string
}

func listMigrations(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []migrationFile
	for _, e := range entries {
		m := upPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{seq: seq, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq < files[j].seq })
	return files, nil
}

// create writes an empty up/down pair with the next sequence number.
func create(dir, name string) error {
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	var next uint64 = 1
	if len(files) > 0 {
		next = files[len(files)-1].seq + 1
	}

	for _, suffix := range []string{"up", "down"} {
		path := filepath.Join(dir, fmt.Sprintf("%04d_%s.%s.sql", next, name, suffix))
		if err := os.WriteFile(path, []byte("-- "+name+" ("+suffix+")\n"), 0o644); err != nil {
			return err
		}
		fmt.Println("created", path)
	}
	return nil
}
