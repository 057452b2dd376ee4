// Package idgen produces globally unique, time-ordered 63-bit identifiers.
//
// An id is [0][31 bits seconds since epoch][32 bits daily counter]. The
// timestamp segment makes ids strictly increasing across processes; the
// counter, a Redis INCR keyed per business key per UTC day, makes them unique
// within a second. A day's counter must stay below 2^32.
package idgen

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Tardigrade97/dianping/internal/clock"
)

// epoch is 2022-01-01T00:00:00Z. 31 bits of seconds last until 2090.
const epoch int64 = 1640995200

const counterBits = 32

// Generator stamps ids using a shared Redis counter.
type Generator struct {
	rdb   *redis.Client
	clock clock.Clock
}

func New(rdb *redis.Client, clk clock.Clock) *Generator {
	return &Generator{rdb: rdb, clock: clk}
}

// Next returns the next id for the given business key. Counter failure is a
// hard error: no caller can proceed without an id.
func (g *Generator) Next(ctx context.Context, businessKey string) (int64, error) {
	now := g.clock.Now()
	seconds := now.Unix() - epoch

	key := fmt.Sprintf("icr:%s:%s", businessKey, now.Format("2006:01:02"))
	count, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", businessKey, err)
	}

	return seconds<<counterBits | count, nil
}
