package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DisconnectJob holds the schema definition for the durable disconnect
// work queue. Rows are inserted only by database triggers (quota breach)
// or the plan-expiry job; consumed exactly once (best-effort) by QSE
// workers.
type DisconnectJob struct {
	ent.Schema
}

// Fields of the DisconnectJob entity.
func (DisconnectJob) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Unique().
			Immutable().
			Comment("BIGSERIAL, assigned by the database"),

		field.String("username").
			NotEmpty(),

		field.Enum("reason").
			Values("QUOTA_EXCEEDED", "PLAN_EXPIRED"),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),

		field.Bool("processed").
			Default(false),

		field.Time("processed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the DisconnectJob entity.
// The partial-unique index on (username, processed=false) that suppresses
// duplicate enqueues is created in migrations/ — ent's index builder has
// no expression-index support for the WHERE clause.
func (DisconnectJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("processed", "created_at"),
	}
}
