package models

import "context"

// Invalidation is a staged teardown of whatever depended on a verification
// that failed. Nothing is removed until Commit. Exactly one of Commit or
// Rollback is called, after the extrinsic that staged it commits or aborts.
type Invalidation interface {
	Commit(ctx context.Context)
	Rollback(ctx context.Context)
}
