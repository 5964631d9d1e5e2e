package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Session holds the schema definition for an accounting record: one
// RADIUS-tracked connection of a user through a router. Immutable once
// closed; only acct_update_time, octet counters and acct_stop_time mutate
// on an open session.
type Session struct {
	ent.Schema
}

// Fields of the Session entity.
func (Session) Fields() []ent.Field {
	return []ent.Field{
		field.String("acct_unique_id").
			NotEmpty().
			Unique().
			Immutable(),

		field.String("session_id").
			NotEmpty(),

		field.String("username").
			NotEmpty(),

		field.String("router_id").
			Optional().
			Nillable().
			Comment("FK to Router, ON DELETE SET NULL"),

		field.String("nas_ip_address").
			Optional(),

		field.String("calling_station_id").
			Optional().
			Comment("client MAC address"),

		field.String("framed_ip_address").
			Optional(),

		field.Time("acct_start_time"),

		field.Time("acct_update_time").
			Optional().
			Nillable(),

		field.Time("acct_stop_time").
			Optional().
			Nillable().
			Comment("null iff the session is still open"),

		field.Int64("acct_input_octets").
			NonNegative().
			Default(0),

		field.Int64("acct_output_octets").
			NonNegative().
			Default(0),

		field.String("acct_terminate_cause").
			Optional(),

		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Session entity.
func (Session) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("router", Router.Type).Ref("sessions").Unique(),
		edge.From("user", User.Type).Ref("sessions").Unique().Field("username"),
	}
}

// Indexes of the Session entity.
func (Session) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("username", "acct_stop_time"),
		index.Fields("router_id", "acct_start_time"),
	}
}
