package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

const flagKeyPrefix = "flags:"

// FlagDisableWebRTC turns off every new call join and media negotiation.
const FlagDisableWebRTC = "disable.webrtc"

type FlagStore struct {
	client *goredis.Client
}

func NewFlagStore(client *goredis.Client) *FlagStore {
	return &FlagStore{client: client}
}

func (f *FlagStore) Active(ctx context.Context, name string) (bool, error) {
	n, err := f.client.Exists(ctx, flagKeyPrefix+name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (f *FlagStore) Set(ctx context.Context, name string, on bool) error {
	if on {
		return f.client.Set(ctx, flagKeyPrefix+name, "1", 0).Err()
	}
	return f.client.Del(ctx, flagKeyPrefix+name).Err()
}
