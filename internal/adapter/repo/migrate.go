package repo

import (
	"context"
	"fmt"

	"modelshoot/internal/infra"
	"modelshoot/internal/sqlinline"
)

// Migrate creates the schema. Statements are idempotent, so it is safe to
// run on every start.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	for i, stmt := range sqlinline.SchemaStatements {
		if _, err := sql.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
