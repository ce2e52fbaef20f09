package migrate

import (
	"io/fs"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"

	"gorm.io/gorm/schema"

	"github.com/dropone-app/dropone-backend/pkg/db/models"
)

// Repository and service tests build their tables from the gorm models, so
// the models must not promise anything the goose DDL does not deliver.

var uniqueIndexPattern = regexp.MustCompile(`(?s)CREATE UNIQUE INDEX IF NOT EXISTS (\w+)\s+ON (\w+) \(([^;]*?)\)\s*(WHERE [^;]+)?;`)

type tableDDL struct {
	columns []string
	checks  map[string]string
	// unique holds plain column lists usable as ON CONFLICT targets.
	unique  [][]string
	partial map[string]partialIndex
}

type partialIndex struct {
	columns []string
	where   string
}

func embeddedDDL(t *testing.T) string {
	t.Helper()
	names, err := fs.Glob(Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	var all strings.Builder
	for _, name := range names {
		data, err := fs.ReadFile(Embedded(), name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		all.Write(data)
		all.WriteString("\n")
	}
	return all.String()
}

func splitColumns(list string) []string {
	var cols []string
	for _, col := range strings.Split(list, ",") {
		cols = append(cols, strings.TrimSpace(col))
	}
	return cols
}

func parseTable(t *testing.T, ddl, table string) tableDDL {
	t.Helper()
	head := "CREATE TABLE IF NOT EXISTS " + table + " ("
	start := strings.Index(ddl, head)
	if start < 0 {
		t.Fatalf("no CREATE TABLE for %s", table)
	}
	body := ddl[start+len(head):]
	end := strings.Index(body, "\n);")
	if end < 0 {
		t.Fatalf("unterminated CREATE TABLE for %s", table)
	}
	body = body[:end]

	out := tableDDL{checks: map[string]string{}, partial: map[string]partialIndex{}}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		switch {
		case line == "":
		case strings.HasPrefix(line, "PRIMARY KEY ("):
			out.unique = append(out.unique, splitColumns(strings.TrimSuffix(strings.TrimPrefix(line, "PRIMARY KEY ("), ")")))
		case strings.HasPrefix(line, "CONSTRAINT "):
			fields := strings.Fields(line)
			rest := strings.Join(fields[2:], " ")
			switch {
			case strings.HasPrefix(rest, "CHECK ("):
				out.checks[fields[1]] = strings.TrimSuffix(strings.TrimPrefix(rest, "CHECK ("), ")")
			case strings.HasPrefix(rest, "UNIQUE ("):
				out.unique = append(out.unique, splitColumns(strings.TrimSuffix(strings.TrimPrefix(rest, "UNIQUE ("), ")")))
			}
		default:
			col := strings.Fields(line)[0]
			out.columns = append(out.columns, col)
			if strings.Contains(line, "PRIMARY KEY") {
				out.unique = append(out.unique, []string{col})
			}
		}
	}

	for _, m := range uniqueIndexPattern.FindAllStringSubmatch(ddl, -1) {
		if m[2] != table {
			continue
		}
		cols := splitColumns(m[3])
		if m[4] != "" {
			out.partial[m[1]] = partialIndex{columns: cols, where: strings.TrimSpace(strings.TrimPrefix(m[4], "WHERE "))}
			continue
		}
		out.unique = append(out.unique, cols)
	}
	return out
}

func (d tableDDL) hasUnique(cols []string) bool {
	for _, u := range d.unique {
		if slices.Equal(u, cols) {
			return true
		}
	}
	return false
}

func parseModel(t *testing.T, model any) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse %T: %v", model, err)
	}
	return s
}

func TestModelsMatchMigrations(t *testing.T) {
	ddl := embeddedDDL(t)
	for _, model := range []any{
		&models.Seller{},
		&models.Store{},
		&models.Order{},
		&models.ProcessedWebhookEvent{},
		&models.Payout{},
		&models.LedgerEntry{},
		&models.KVCacheEntry{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	} {
		s := parseModel(t, model)
		table := parseTable(t, ddl, s.Table)

		modelCols := slices.Clone(s.DBNames)
		ddlCols := slices.Clone(table.columns)
		slices.Sort(modelCols)
		slices.Sort(ddlCols)
		if !slices.Equal(modelCols, ddlCols) {
			t.Errorf("%s: model columns %v, migration columns %v", s.Table, modelCols, ddlCols)
		}

		if !table.hasUnique(s.PrimaryFieldDBNames) {
			t.Errorf("%s: primary key %v missing from migration", s.Table, s.PrimaryFieldDBNames)
		}

		for name, chk := range s.ParseCheckConstraints() {
			if got, ok := table.checks[name]; !ok || got != chk.Constraint {
				t.Errorf("%s: check %s is %q in the model, %q in the migration", s.Table, name, chk.Constraint, got)
			}
		}

		for _, idx := range s.ParseIndexes() {
			if idx.Class != "UNIQUE" {
				continue
			}
			var cols []string
			for _, f := range idx.Fields {
				cols = append(cols, f.DBName)
			}
			if idx.Where != "" {
				p, ok := table.partial[idx.Name]
				if !ok || !slices.Equal(p.columns, cols) || p.where != idx.Where {
					t.Errorf("%s: partial unique index %s (%v WHERE %s) missing from migration", s.Table, idx.Name, cols, idx.Where)
				}
				continue
			}
			if !table.hasUnique(cols) {
				t.Errorf("%s: unique index %s on %v has no plain unique target in the migration", s.Table, idx.Name, cols)
			}
		}
	}
}

func TestUpsertTargetsAreUniqueInMigrations(t *testing.T) {
	ddl := embeddedDDL(t)
	targets := map[string][]string{
		"users":                    {"email"},
		"kv_cache":                 {"id"},
		"processed_webhook_events": {"provider", "event_id"},
		"outbox_events":            {"event_type", "aggregate_type", "aggregate_id", "dedupe_key"},
	}
	for table, cols := range targets {
		if !parseTable(t, ddl, table).hasUnique(cols) {
			t.Errorf("ON CONFLICT (%s) on %s has no matching unique index or constraint", strings.Join(cols, ", "), table)
		}
	}
}

func TestExpressionIndexIsNotAConflictTarget(t *testing.T) {
	ddl := `CREATE TABLE IF NOT EXISTS users (
    id uuid PRIMARY KEY,
    email text NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email));
`
	table := parseTable(t, ddl, "users")
	if table.hasUnique([]string{"email"}) {
		t.Fatal("lower(email) index must not satisfy ON CONFLICT (email)")
	}
	if !table.hasUnique([]string{"id"}) {
		t.Fatal("expected inline primary key to be a unique target")
	}
}
