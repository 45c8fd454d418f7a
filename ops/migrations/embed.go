// Package migrations embeds the SQL schema for each supported database and
// the reference data seeds.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed mysql/*.sql postgres/*.sql seeds/*.sql
var files embed.FS

// Schema returns the migrations for dialect ("mysql" or "postgres").
func Schema(dialect string) (fs.FS, error) {
	switch dialect {
	case "mysql", "postgres":
		return fs.Sub(files, dialect)
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}

// Seeds returns the reference data seeds, valid for every dialect.
func Seeds() fs.FS {
	sub, err := fs.Sub(files, "seeds")
	if err != nil {
		panic(err)
	}
	return sub
}
