// Package ent documents the relational-store schema for spotfi-cloud using
// entgo.io/ent schema declarations. The declarations in schema/ are the
// source of truth for field names, types and constraints; the SQL that
// actually creates the tables (including triggers and LISTEN/NOTIFY wiring
// that ent cannot express) lives in migrations/ and is applied with
// golang-migrate. This package intentionally carries no generated client —
// runtime access goes through internal/store against pgx.
package ent
