package memberstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	updateInitialInterval = 10 * time.Millisecond
	updateMaxInterval     = 250 * time.Millisecond
	updateMaxRetries      = uint64(5)
)

// UpdateWithRetry runs Store.Update, retrying with exponential backoff while
// the storage layer reports write conflicts. Any other error aborts
// immediately. After the retry budget is exhausted the last ErrConflict is
// returned, for the caller to surface as a storage-unavailable outcome.
func UpdateWithRetry(ctx context.Context, s Store, communityID, memberID string, mutate func(*Member) error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(updateInitialInterval),
		backoff.WithMaxInterval(updateMaxInterval),
	), updateMaxRetries)

	return backoff.Retry(func() error {
		err := s.Update(ctx, communityID, memberID, mutate)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
