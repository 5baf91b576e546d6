package db

import _ "embed"

// Schema is the complete DDL for the ledger database. Tests and local setup
// apply it directly; the statements are idempotent.
//
//go:embed schema.sql
var Schema string
