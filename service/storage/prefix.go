package storage

import (
	"context"

	redis2 "PPulse/service/storage/redis"
	"PPulse/tools/errs"
)

const prefixDeleteChunk = 128

// Prefixes implements the purge module's ephemeral cleanup: SCAN + chunked
// DEL, safe to re-run (a second pass simply matches nothing).
type Prefixes struct{}

func (Prefixes) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	rdb := redis2.Client()
	if rdb == nil {
		return 0, errs.New("redis not initialized")
	}

	var deleted int64
	var cursor uint64
	buf := make([]string, 0, prefixDeleteChunk)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := rdb.Del(ctx, buf...).Result()
		deleted += n
		buf = buf[:0]
		return err
	}

	for {
		keys, next, err := rdb.Scan(ctx, cursor, prefix+"*", prefixDeleteChunk).Result()
		if err != nil {
			return deleted, err
		}
		for _, k := range keys {
			buf = append(buf, k)
			if len(buf) >= prefixDeleteChunk {
				if err := flush(); err != nil {
					return deleted, err
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, flush()
}
