package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// User holds the schema definition for the end-user entity.
type User struct {
	ent.Schema
}

// Fields of the User entity.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Unique().
			Immutable(),

		field.String("username").
			NotEmpty().
			Unique(),

		field.String("password_hash").
			NotEmpty().
			Sensitive(),

		field.Enum("status").
			Values("ACTIVE", "INACTIVE", "SUSPENDED", "EXPIRED").
			Default("ACTIVE"),
	}
}

// Edges of the User entity.
func (User) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("plan_assignments", PlanAssignment.Type),
		edge.To("sessions", Session.Type),
	}
}

// Indexes of the User entity.
func (User) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("username").Unique(),
	}
}
