package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// UsageCounter holds the schema definition for the per-user, per-period
// incremental byte counter maintained entirely by database triggers
// (see migrations/, not application code).
type UsageCounter struct {
	ent.Schema
}

// Fields of the UsageCounter entity.
func (UsageCounter) Fields() []ent.Field {
	return []ent.Field{
		field.String("username").
			NotEmpty(),

		field.String("period_key").
			NotEmpty().
			Comment("encodes the plan's quota period, e.g. 2026-07 for MONTHLY"),

		field.Int64("total_bytes").
			NonNegative().
			Default(0),

		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the UsageCounter entity.
func (UsageCounter) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("username", "period_key").Unique(),
	}
}

// RouterDailyUsage holds the schema definition for the per-router,
// per-day byte counter, replacing live mutation of a single router
// total-usage column.
type RouterDailyUsage struct {
	ent.Schema
}

// Fields of the RouterDailyUsage entity.
func (RouterDailyUsage) Fields() []ent.Field {
	return []ent.Field{
		field.String("router_id").
			NotEmpty(),

		field.Time("date").
			Comment("day boundary in UTC"),

		field.Int64("total_bytes").
			NonNegative().
			Default(0),
	}
}

// Indexes of the RouterDailyUsage entity.
func (RouterDailyUsage) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("router_id", "date").Unique(),
	}
}

// RouterDailyUsageSummary holds the schema definition for the
// read-optimized materialization of RouterDailyUsage that fleet
// dashboards query directly, refreshed periodically rather than on
// every accounting trigger fire.
type RouterDailyUsageSummary struct {
	ent.Schema
}

// Fields of the RouterDailyUsageSummary entity.
func (RouterDailyUsageSummary) Fields() []ent.Field {
	return []ent.Field{
		field.String("router_id").
			NotEmpty(),

		field.Time("date"),

		field.Int64("total_bytes").
			NonNegative().
			Default(0),

		field.Time("materialized_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the RouterDailyUsageSummary entity.
func (RouterDailyUsageSummary) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("router_id", "date").Unique(),
	}
}
