package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "barbershop:occupied:"

// Each entry is a hash with a "gen" counter and the JSON "times" list.
// Invalidate bumps gen; Set only writes when gen still matches the version
// the caller read before loading from the database.
const (
	fieldGen   = "gen"
	fieldTimes = "times"
)

var setIfVersion = redis.NewScript(`
local gen = redis.call('HGET', KEYS[1], 'gen') or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'times', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// OccupiedTimes caches the booked times of a barber per date in Redis. Entries
// hold no client data.
type OccupiedTimes struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewOccupiedTimes(client redis.Cmdable, ttl time.Duration) *OccupiedTimes {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &OccupiedTimes{client: client, ttl: ttl}
}

func occupiedKey(barberID uuid.UUID, date string) string {
	return keyPrefix + barberID.String() + ":" + date
}

// Get returns the cached times and the entry version. The version is valid on
// a miss too and must be handed back to Set.
func (c *OccupiedTimes) Get(ctx context.Context, barberID uuid.UUID, date string) ([]string, int64, bool, error) {
	vals, err := c.client.HMGet(ctx, occupiedKey(barberID, date), fieldGen, fieldTimes).Result()
	if err != nil {
		return nil, 0, false, err
	}

	var version int64
	if s, ok := vals[0].(string); ok {
		version, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, 0, false, err
		}
	}

	raw, ok := vals[1].(string)
	if !ok {
		return nil, version, false, nil
	}
	var times []string
	if err := json.Unmarshal([]byte(raw), &times); err != nil {
		return nil, version, false, err
	}
	return times, version, true, nil
}

// Set stores times unless the entry was invalidated after version was read.
func (c *OccupiedTimes) Set(ctx context.Context, barberID uuid.UUID, date string, version int64, times []string) error {
	if times == nil {
		times = []string{}
	}
	raw, err := json.Marshal(times)
	if err != nil {
		return err
	}
	return setIfVersion.Run(ctx, c.client,
		[]string{occupiedKey(barberID, date)},
		strconv.FormatInt(version, 10), string(raw), c.ttl.Milliseconds(),
	).Err()
}

func (c *OccupiedTimes) Invalidate(ctx context.Context, barberID uuid.UUID, dates ...string) error {
	if len(dates) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, d := range dates {
			key := occupiedKey(barberID, d)
			pipe.HIncrBy(ctx, key, fieldGen, 1)
			pipe.HDel(ctx, key, fieldTimes)
			pipe.PExpire(ctx, key, c.ttl)
		}
		return nil
	})
	return err
}

// Connect opens a client and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
