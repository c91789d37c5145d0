package verdict

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// CachedSource memoizes verdicts from an inner source, keyed by a hash of
// the message text plus the member level. It assumes the inner source is
// a function of those two inputs (true of KeywordSource and of text
// classifiers generally); identical spam pasted across communities is
// classified once. Errors are never cached.
type CachedSource struct {
	Inner Source
	Data  *cache.Cache
	TTL   time.Duration
}

// NewCachedSource wraps inner with a TinyLFU local cache, and optionally
// a shared redis tier when redisURL is non-empty.
func NewCachedSource(inner Source, redisURL string, ttl time.Duration) (*CachedSource, error) {
	opts := &cache.Options{
		LocalCache: cache.NewTinyLFU(10_000, ttl),
	}
	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		rdb := redis.NewClient(opt)
		// check redis connection
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			return nil, err
		}
		opts.Redis = rdb
	}
	return &CachedSource{
		Inner: inner,
		Data:  cache.New(opts),
		TTL:   ttl,
	}, nil
}

func verdictCacheKey(msg *Message) string {
	return fmt.Sprintf("verdict/%s/%d", HashOfString(msg.Text), msg.MemberLevel)
}

func (cs *CachedSource) Classify(ctx context.Context, msg *Message) (*Verdict, error) {
	key := verdictCacheKey(msg)

	var v Verdict
	err := cs.Data.Get(ctx, key, &v)
	if err == nil {
		verdictCacheHits.Inc()
		return &v, nil
	}
	if err != cache.ErrCacheMiss {
		return nil, err
	}
	verdictCacheMisses.Inc()

	out, err := cs.Inner.Classify(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := cs.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: *out,
		TTL:   cs.TTL,
	}); err != nil {
		return nil, err
	}
	return out, nil
}
