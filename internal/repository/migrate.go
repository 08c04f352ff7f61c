package repository

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	annotation "entgo.io/ent/dialect/entsql"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/health-report-parser/db/ent/schema"
)

// table is a schema type reduced to what the repository needs.
type table struct {
	name    string
	fields  map[string]*field.Descriptor
	order   []string
	indexes [][]string
}

func loadTable(name string, fields []ent.Field, indexes []ent.Index) (*table, error) {
	t := &table{name: name, fields: map[string]*field.Descriptor{}}
	for _, f := range fields {
		d := f.Descriptor()
		if d.Err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, d.Name, d.Err)
		}
		t.fields[d.Name] = d
		t.order = append(t.order, d.Name)
	}
	for _, i := range indexes {
		t.indexes = append(t.indexes, i.Descriptor().Fields)
	}
	return t, nil
}

var reportJobTable = func() *table {
	s := schema.ReportJob{}
	name := "report_job"
	for _, a := range s.Annotations() {
		if ann, ok := a.(annotation.Annotation); ok && ann.Table != "" {
			name = ann.Table
		}
	}
	t, err := loadTable(name, s.Fields(), s.Indexes())
	if err != nil {
		panic(err)
	}
	return t
}()

func columnType(d *field.Descriptor, dia string) string {
	if t, ok := d.SchemaType[dia]; ok {
		return t
	}
	pg := dia == dialect.Postgres
	switch d.Info.Type {
	case field.TypeFloat64, field.TypeFloat32:
		if pg {
			return "double precision"
		}
		return "real"
	case field.TypeTime:
		if pg {
			return "timestamptz"
		}
		return "datetime"
	case field.TypeJSON:
		if pg {
			return "jsonb"
		}
		return "text"
	case field.TypeInt, field.TypeInt64, field.TypeInt32:
		return "bigint"
	case field.TypeBool:
		return "boolean"
	}
	// uuids are stored in their text form
	return "text"
}

func (t *table) ddl(dia string) []string {
	b := entsql.Dialect(dia)
	ct := b.CreateTable(t.name).IfNotExists()
	for _, name := range t.order {
		d := t.fields[name]
		c := entsql.Column(name).Type(columnType(d, dia))
		if !d.Optional && !d.Nillable {
			c.Attr("NOT NULL")
		}
		ct.Columns(c)
	}
	ct.PrimaryKey("id")
	q, _ := ct.Query()
	stmts := []string{q}
	for _, cols := range t.indexes {
		q, _ := b.CreateIndex(t.name + "_" + strings.Join(cols, "_")).IfNotExists().Table(t.name).Columns(cols...).Query()
		stmts = append(stmts, q)
	}
	return stmts
}

// validate runs the schema's string validators over the given values.
func (t *table) validate(values map[string]string) error {
	for name, v := range values {
		d, ok := t.fields[name]
		if !ok {
			return fmt.Errorf("%s: unknown column %q", t.name, name)
		}
		for _, fn := range d.Validators {
			check, ok := fn.(func(string) error)
			if !ok {
				continue
			}
			if err := check(v); err != nil {
				return fmt.Errorf("%s.%s: %w", t.name, name, err)
			}
		}
	}
	return nil
}

// Migrate creates the tables and indexes that do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range reportJobTable.ddl(db.dialect) {
		if _, err := db.drv.DB().ExecContext(ctx, stmt); err != nil {
			db.logger.Error("migration failed", "statement", stmt, "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db.logger.Info("schema migrated", "table", reportJobTable.name, "dialect", db.dialect)
	return nil
}
