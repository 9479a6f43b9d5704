// Package migrations holds the policy store schema. The scripts are applied
// by database.Migrate at startup and by the integration test containers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
