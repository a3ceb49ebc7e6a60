// Package retry runs an operation until it succeeds, fails with an error
// that is not worth retrying, or runs out of attempts.
//
// davmigrate only retries reaching the database at startup. Uploads and
// ledger writes are never retried here: a failed batch is recovered by
// running the migration again, which skips everything already in the ledger.
//
//	db, err := retry.DoWithResult(ctx, func() (*gorm.DB, error) {
//	    return open(cfg)
//	}, &retry.Config{
//	    MaxAttempts: 3,
//	    Backoff:     retry.DefaultExponentialBackoff(),
//	    RetryIf:     retry.DefaultRetryIf,
//	})
package retry
