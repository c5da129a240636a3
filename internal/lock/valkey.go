package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

// releaseScript deletes key only if it still holds token, so one
// holder's lock cannot be released out from under a different holder
// whose lease has since expired and been reacquired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// distributed is a Locker backed by a single valkey key, used to make
// StrategyLock and AuditLock cluster-wide when more than one
// orchestrator process runs against the same store.
type distributed struct {
	client valkey.Client
	key    string
	ttl    time.Duration
	retry  time.Duration

	token string
}

// NewDistributed returns a Locker backed by the given valkey client. key
// identifies the lock (e.g. "dcorch:strategy-lock" or
// "dcorch:audit-lock"); ttl bounds how long a holder may keep the lock
// without renewing, guarding against a crashed holder wedging it forever.
func NewDistributed(client valkey.Client, key string, ttl time.Duration) Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &distributed{client: client, key: key, ttl: ttl, retry: 50 * time.Millisecond}
}

func (d *distributed) Lock(ctx context.Context) error {
	token := uuid.NewString()
	for {
		cmd := d.client.B().Set().Key(d.key).Value(token).Nx().Px(d.ttl).Build()
		ok, err := d.client.Do(ctx, cmd).AsBool()
		if err == nil && ok {
			d.token = token
			return nil
		}
		if err != nil && !valkey.IsValkeyNil(err) {
			return fmt.Errorf("lock %s: %w", d.key, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.retry):
		}
	}
}

func (d *distributed) Unlock() {
	if d.token == "" {
		return
	}
	cmd := d.client.B().Eval().Script(releaseScript).Numkeys(1).Key(d.key).Arg(d.token).Build()
	// Best-effort: the lease expires on its own even if this fails, per
	// the ttl passed to NewDistributed.
	_ = d.client.Do(context.Background(), cmd).Error()
	d.token = ""
}
