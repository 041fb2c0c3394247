package store

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

// Redis persists ledger state as JSON documents in a Redis instance.
type Redis struct {
	rdb *redis.Client
}

// NewRedis creates a Redis-backed store.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Save(ctx context.Context, key string, state State) error {
	data, err := sonic.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal ledger state")
	}
	if err := r.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrap(err, "save ledger state")
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, key string) (State, bool, error) {
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, errors.Wrap(err, "load ledger state")
	}
	var state State
	if err := sonic.Unmarshal(data, &state); err != nil {
		return State{}, false, errors.Wrap(err, "unmarshal ledger state")
	}
	return state, true, nil
}

var _ Store = (*Redis)(nil)
