// Package ratelimit throttles requests to the remote store.
//
// A SlidingWindow admits at most N requests in any window of the given
// length. PerMinute builds the limiter used by the storage backends from
// storage.requests_per_minute; zero means no limit.
//
//	limiter := ratelimit.PerMinute(cfg.Storage.RequestsPerMinute)
//	if err := limiter.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
