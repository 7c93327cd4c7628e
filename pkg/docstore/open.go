package docstore

import (
	"context"
	"fmt"
)

// Open opens the store for driver ("sqlite" or "postgres")
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "sqlite3", "":
		return OpenSQLite(dsn)
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("docstore: unknown driver %q", driver)
	}
}
