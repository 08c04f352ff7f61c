// Package schema declares the persisted tables with ent's schema DSL. The
// repository builds its DDL and write-time validation from these descriptors.
package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/health-report-parser/constants"
	"github.com/joseph-ayodele/health-report-parser/db/ent/schema/utils"
)

// ReportJob is one parse run over a document.
type ReportJob struct{ ent.Schema }

func (ReportJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "report_job"},
	}
}

func (ReportJob) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.String("path").NotEmpty(),
		field.String("content_hash").Optional().MaxLen(64),
		field.String("format").NotEmpty().
			Validate(utils.OneOf(constants.FileTypes...)),
		field.String("status").NotEmpty().
			Validate(utils.OneOf(constants.JobStatuses...)),
		field.String("source").Optional().Nillable(),
		field.Float("confidence").Optional().Nillable(),
		field.Float("completeness").Optional().Nillable(),
		field.String("error_message").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.JSON("report_json", json.RawMessage{}).
			Optional(),
		field.Time("started_at").Default(time.Now),
		field.Time("finished_at").Optional().Nillable(),
	}
}

func (ReportJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status", "started_at"),
		index.Fields("content_hash"),
	}
}
