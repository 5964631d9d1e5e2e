package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// Plan holds the schema definition for a plan catalog entry.
type Plan struct {
	ent.Schema
}

// Fields of the Plan entity.
func (Plan) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Unique().
			Immutable(),

		field.String("name").
			NotEmpty(),

		field.Int64("data_quota_bytes").
			Optional().
			Nillable().
			Comment("nil means unlimited"),

		field.Enum("quota_type").
			Values("MONTHLY", "DAILY", "WEEKLY", "ONE_TIME").
			Default("MONTHLY"),

		field.Int64("upload_cap_bps").
			Optional().
			Nillable(),

		field.Int64("download_cap_bps").
			Optional().
			Nillable(),

		field.Int64("session_timeout_sec").
			Optional().
			Nillable(),

		field.Int64("idle_timeout_sec").
			Optional().
			Nillable(),

		field.Int("max_concurrent").
			Positive().
			Default(1),

		field.Int("validity_days").
			Positive(),

		field.Enum("status").
			Values("ACTIVE", "RETIRED").
			Default("ACTIVE"),
	}
}

// Edges of the Plan entity.
func (Plan) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("assignments", PlanAssignment.Type),
	}
}
