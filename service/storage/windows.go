package storage

import (
	"context"
	"encoding/json"

	"PPulse/module/gate"
	redis2 "PPulse/service/storage/redis"
	"PPulse/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Windows backs module/gate with redis. The read-modify-write runs under
// WATCH so two concurrent first-time callers cannot both reset the counter;
// conflicting writers retry a bounded number of times and then fail, which
// the limiter treats as deny.
type Windows struct{}

const windowMutateRetries = 5

func (Windows) Mutate(ctx context.Context, key string, fn func(gate.Window) (gate.Window, bool)) error {
	rdb := redis2.Client()
	if rdb == nil {
		return errs.New("redis not initialized")
	}

	txf := func(tx *redis.Tx) error {
		var w gate.Window
		val, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if uerr := json.Unmarshal([]byte(val), &w); uerr != nil {
				// corrupt window: treat as absent, next write repairs it
				w = gate.Window{}
			}
		}

		next, write := fn(w)
		if !write {
			return nil
		}
		raw, merr := json.Marshal(next)
		if merr != nil {
			return merr
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}

	for i := 0; i < windowMutateRetries; i++ {
		err := rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return gate.ErrContention
}
