// Package migrations embeds the SQL schema migrations into the binary.
//
// Import for side effects from main:
//
//	_ "github.com/nerrad567/garden-core/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/garden-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
