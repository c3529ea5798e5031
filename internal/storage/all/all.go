// Package all registers every storage backend.
package all

import (
	_ "ethnograph/internal/storage/memory"
	_ "ethnograph/internal/storage/mssql"
	_ "ethnograph/internal/storage/postgres"
	_ "ethnograph/internal/storage/sqlite"
)
