package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/dropone-app/dropone-backend/pkg/logger"
)

// DefaultDir is where new migrations are written during development.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded returns the migrations compiled into the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Dir reads migrations from disk, for iterating on a new migration without
// rebuilding.
func Dir(path string) fs.FS {
	return os.DirFS(path)
}

// Command is a goose operation exposed by cmd/migrate.
type Command string

const (
	CommandUp     Command = "up"
	CommandDown   Command = "down"
	CommandRedo   Command = "redo"
	CommandStatus Command = "status"
	CommandTo     Command = "to"
)

// Execute runs cmd against db using the migrations in fsys. target is only
// read by CommandTo, which moves up or down until the schema is at target.
func Execute(ctx context.Context, db *sql.DB, fsys fs.FS, cmd Command, target int64, logg *logger.Logger) error {
	if db == nil {
		return errors.New("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}
	defer provider.Close()

	switch cmd {
	case CommandUp:
		results, err := provider.Up(ctx)
		report(ctx, logg, results...)
		return wrap(cmd, err)
	case CommandDown:
		result, err := provider.Down(ctx)
		report(ctx, logg, result)
		return wrap(cmd, err)
	case CommandRedo:
		down, err := provider.Down(ctx)
		report(ctx, logg, down)
		if err != nil {
			return wrap(cmd, err)
		}
		up, err := provider.UpByOne(ctx)
		report(ctx, logg, up)
		return wrap(cmd, err)
	case CommandStatus:
		return status(ctx, provider, logg)
	case CommandTo:
		return migrateTo(ctx, provider, target, logg)
	}
	return fmt.Errorf("unknown migrate command %q", cmd)
}

func migrateTo(ctx context.Context, provider *goose.Provider, target int64, logg *logger.Logger) error {
	if target < 0 {
		return fmt.Errorf("invalid target version %d", target)
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil
	case current < target:
		results, err = provider.UpTo(ctx, target)
	default:
		results, err = provider.DownTo(ctx, target)
	}
	report(ctx, logg, results...)
	return wrap(CommandTo, err)
}

func status(ctx context.Context, provider *goose.Provider, logg *logger.Logger) error {
	statuses, err := provider.Status(ctx)
	if err != nil {
		return wrap(CommandStatus, err)
	}
	if logg == nil {
		return nil
	}
	for _, st := range statuses {
		fields := map[string]any{
			"version": st.Source.Version,
			"path":    st.Source.Path,
			"state":   string(st.State),
		}
		if !st.AppliedAt.IsZero() {
			fields["applied_at"] = st.AppliedAt
		}
		logg.Info(logg.WithFields(ctx, fields), "migration status")
	}
	return nil
}

func report(ctx context.Context, logg *logger.Logger, results ...*goose.MigrationResult) {
	if logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
			"empty":       res.Empty,
		}), "migration applied")
	}
}

// wrap treats "nothing left to do" as success.
func wrap(cmd Command, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goose.ErrNoNextVersion), errors.Is(err, goose.ErrNoCurrentVersion):
		return nil
	}
	return fmt.Errorf("goose %s: %w", cmd, err)
}
