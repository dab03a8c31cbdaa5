//go:build !sqlite_cgo

package store

import (
	_ "modernc.org/sqlite" // pure Go driver, FTS5 built in
)

// DriverName is the database/sql driver used for the structured store.
const DriverName = "sqlite"

// BuildMode describes the SQLite build configuration.
const BuildMode = "purego"
