// Package warehouse defines the SQL execution port against the projects warehouse.
package warehouse

import (
	"context"

	"github.com/atlas-delivery/atlas/internal/domain/query"
)

// Executor runs read-only SQL against the warehouse and returns rows with
// their column order preserved. Caller-supplied values are passed as
// positional args, never interpolated. Implementations retry once on an
// authentication-token-expiration error before failing.
type Executor interface {
	Execute(ctx context.Context, sql string, args ...any) (*query.Rowset, error)
}
