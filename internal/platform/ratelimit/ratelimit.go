package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter: key ごとに window 内 limit 回まで許可する固定窓カウンタ
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Key: 生の識別子をそのまま保存しない
func Key(scope string, parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v|", p)
	}
	return scope + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

// ===== Redis =====

// INCR と初回 PEXPIRE を 1 往復で行う。TTL 無しのキーが残らない
const allowSrc = `
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`

var allowScript = redis.NewScript(allowSrc)

type Redis struct {
	client redis.Scripter
	limit  int64
	window time.Duration
	prefix string
}

func NewRedis(client redis.Scripter, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: int64(limit), window: window, prefix: "rl:"}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	n, err := allowScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit incr: %w", err)
	}
	return n <= r.limit, nil
}

// ===== in-memory =====

type counter struct {
	count int
	reset time.Time
}

type Memory struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string]*counter
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{limit: limit, window: window, now: time.Now, hits: make(map[string]*counter)}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.hits[key]
	if !ok || !now.Before(c.reset) {
		c = &counter{reset: now.Add(m.window)}
		m.hits[key] = c
		m.sweep(now)
	}
	c.count++
	return c.count <= m.limit, nil
}

// 期限切れのキーを掃除
func (m *Memory) sweep(now time.Time) {
	for k, c := range m.hits {
		if !now.Before(c.reset) {
			delete(m.hits, k)
		}
	}
}
