package store

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent"
	entsql "entgo.io/ent/dialect/sql"
	entschema "entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/abhisek/examdrill/ent/schema"
)

// Table names.
const (
	tableCards           = "cards"
	tableRecoveryRecords = "recovery_records"
	tableSessionEvents   = "session_events"
)

var schemas = []struct {
	name   string
	schema ent.Interface
}{
	{tableCards, schema.Card{}},
	{tableRecoveryRecords, schema.RecoveryRecord{}},
	{tableSessionEvents, schema.SessionEvent{}},
}

// migrate creates or updates every table declared in ent/schema.
func migrate(ctx context.Context, drv *entsql.Driver) error {
	tables := make([]*entschema.Table, 0, len(schemas))
	for _, s := range schemas {
		t, err := buildTable(s.name, s.schema)
		if err != nil {
			return err
		}
		tables = append(tables, t)
	}
	m, err := entschema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	return m.Create(ctx, tables...)
}

// buildTable turns an ent schema into a migration table. A field named
// "id" becomes the primary key; otherwise an auto-increment integer id is
// added.
func buildTable(name string, s ent.Interface) (*entschema.Table, error) {
	var (
		fields  []ent.Field
		indexes []ent.Index
	)
	for _, m := range s.Mixin() {
		fields = append(fields, m.Fields()...)
		indexes = append(indexes, m.Indexes()...)
	}
	fields = append(fields, s.Fields()...)
	indexes = append(indexes, s.Indexes()...)

	t := &entschema.Table{Name: name}
	columns := make(map[string]*entschema.Column, len(fields)+1)
	for _, f := range fields {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, d.Name, d.Err)
		}
		c := &entschema.Column{
			Name:     d.Name,
			Type:     d.Info.Type,
			Unique:   d.Unique,
			Nullable: d.Optional || d.Nillable,
			Size:     int64(d.Size),
		}
		if d.Name == "id" {
			c.Unique = true
			t.PrimaryKey = []*entschema.Column{c}
		}
		columns[d.Name] = c
		t.Columns = append(t.Columns, c)
	}
	if t.PrimaryKey == nil {
		id := &entschema.Column{Name: "id", Type: field.TypeInt, Increment: true}
		t.Columns = append([]*entschema.Column{id}, t.Columns...)
		t.PrimaryKey = []*entschema.Column{id}
	}

	for _, idx := range indexes {
		d := idx.Descriptor()
		cols := make([]*entschema.Column, 0, len(d.Fields))
		for _, f := range d.Fields {
			c, ok := columns[f]
			if !ok {
				return nil, fmt.Errorf("%s: index on unknown field %q", name, f)
			}
			cols = append(cols, c)
		}
		t.Indexes = append(t.Indexes, &entschema.Index{
			Name:    indexName(name, d.Fields),
			Unique:  d.Unique,
			Columns: cols,
		})
	}
	return t, nil
}

// indexName follows ent's generated naming: <singular table>_<fields>.
func indexName(table string, fields []string) string {
	base := strings.ReplaceAll(strings.TrimSuffix(table, "s"), "_", "")
	return base + "_" + strings.Join(fields, "_")
}
