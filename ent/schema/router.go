package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Router holds the schema definition for the Router entity.
// A router is one edge access point: its broker identity, RADIUS/UAM
// secrets, and the liveness state the presence pipeline maintains.
type Router struct {
	ent.Schema
}

// Fields of the Router entity.
func (Router) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Unique().
			Immutable().
			Comment("opaque router id, also the broker username and MQTT topic segment"),

		field.String("token").
			NotEmpty().
			Sensitive().
			Comment("bearer credential for broker auth; unique"),

		field.String("radius_secret").
			NotEmpty().
			Sensitive().
			Comment("RADIUS shared secret for this router's NAS entry"),

		field.String("uam_secret").
			NotEmpty().
			Sensitive().
			Comment("hex UAM secret used as the CHAP password in the portal handshake"),

		field.String("mac_address").
			Optional().
			MaxLen(12).
			Comment("normalized uppercase, no separators"),

		field.String("nas_ip_address").
			Optional().
			Comment("last-known NAS IP address"),

		field.String("name").
			NotEmpty(),

		field.String("host_id").
			NotEmpty().
			Comment("owning host/account id, opaque to this service"),

		field.Enum("status").
			Values("ONLINE", "OFFLINE", "ERROR").
			Default("OFFLINE"),

		field.Time("last_seen").
			Optional().
			Nillable(),
	}
}

// Edges of the Router entity.
func (Router) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("sessions", Session.Type),
	}
}

// Indexes of the Router entity.
func (Router) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("token").Unique(),
		index.Fields("mac_address").Unique(),
		index.Fields("host_id"),
	}
}
