package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActivationQuota enforces the per-account daily cap on activation
// messages. The counter lives in Redis keyed by local date so all engine
// processes share it, and the check-and-increment runs as a Lua script
// to stay atomic under concurrent ticks.
type ActivationQuota struct {
	client *redis.Client
	loc    *time.Location
	now    func() time.Time
}

func NewActivationQuota(client *redis.Client, loc *time.Location) *ActivationQuota {
	return &ActivationQuota{client: client, loc: loc, now: time.Now}
}

// Atomically increments the day's counter unless the limit is already
// reached. The key expires at local end of day so stale counters never
// leak into the next day.
var activationQuotaScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if current >= limit then
    return 0
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('EXPIREAT', KEYS[1], tonumber(ARGV[2]))
end
return current
`)

// Allow reserves one activation send for the account today. Returns
// false when the daily cap is already spent.
func (q *ActivationQuota) Allow(ctx context.Context, accountID string, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	now := q.now().In(q.loc)
	key := q.key(accountID, now)
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, q.loc).AddDate(0, 0, 1)

	res, err := activationQuotaScript.Run(ctx, q.client, []string{key},
		limit, endOfDay.Unix()).Int()
	if err != nil {
		return false, fmt.Errorf("activation quota check: %w", err)
	}
	return res > 0, nil
}

// Used reports how many activation sends the account has consumed today.
func (q *ActivationQuota) Used(ctx context.Context, accountID string) (int, error) {
	val, err := q.client.Get(ctx, q.key(accountID, q.now().In(q.loc))).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("activation quota read: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("activation quota parse %q: %w", val, err)
	}
	return n, nil
}

func (q *ActivationQuota) key(accountID string, t time.Time) string {
	return fmt.Sprintf("activation:quota:%s:%s", t.Format("2006-01-02"), accountID)
}
