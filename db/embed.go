// Package db embeds the PostgreSQL schema for the pricing tables.
package db

import _ "embed"

// Schema creates the discount_codes and shipping_rates tables if missing.
//
//go:embed migrations/001_schema.sql
var Schema string
