//go:build sqlite_cgo

package store

// Build with: CGO_ENABLED=1 go build -tags "sqlite_cgo sqlite_fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver used for the structured store.
const DriverName = "sqlite3"

// BuildMode describes the SQLite build configuration.
const BuildMode = "cgo"
