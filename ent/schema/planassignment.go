package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PlanAssignment holds the schema definition for the UserPlan binding.
type PlanAssignment struct {
	ent.Schema
}

// Fields of the PlanAssignment entity.
func (PlanAssignment) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Unique().
			Immutable(),

		field.String("user_id").
			NotEmpty(),

		field.String("plan_id").
			NotEmpty(),

		field.Time("assigned_at").
			Default(time.Now).
			Immutable(),

		field.Time("activated_at").
			Optional().
			Nillable(),

		field.Time("expires_at").
			Optional().
			Nillable(),

		field.Int64("data_used").
			NonNegative().
			Default(0).
			Comment("running counter snapshot, refreshed from usage_counters"),

		field.Int64("data_quota").
			Optional().
			Nillable().
			Comment("overrides the plan default quota when set"),

		field.Enum("status").
			Values("PENDING", "ACTIVE", "EXPIRED", "CANCELLED").
			Default("PENDING"),
	}
}

// Edges of the PlanAssignment entity.
func (PlanAssignment) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("user", User.Type).Ref("plan_assignments").Unique().Required(),
		edge.From("plan", Plan.Type).Ref("assignments").Unique().Required(),
	}
}

// Indexes of the PlanAssignment entity.
func (PlanAssignment) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "status"),
	}
}
