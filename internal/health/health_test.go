package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

func TestChecker_AllHealthy(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("ledger", func(ctx context.Context) Status { return StatusOK })
	c.Register("snapshot", func(ctx context.Context) Status { return StatusOK })

	assert.True(t, c.IsReady(context.Background()))
	assert.Equal(t, map[string]Status{"ledger": StatusOK, "snapshot": StatusOK}, c.Last())
}

func TestChecker_OneDown(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("ledger", func(ctx context.Context) Status { return StatusDown })
	c.Register("snapshot", func(ctx context.Context) Status { return StatusOK })

	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_Degraded_StillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("snapshot", func(ctx context.Context) Status { return StatusDegraded })

	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
	assert.Empty(t, c.Last())
}

func TestPingCheck(t *testing.T) {
	assert.Equal(t, StatusOK, PingCheck(pinger{})(context.Background()))
	assert.Equal(t, StatusDown, PingCheck(pinger{err: errors.New("refused")})(context.Background()))
}

func TestAgeCheck(t *testing.T) {
	age := time.Duration(-1)
	check := AgeCheck(func() time.Duration { return age }, 2*time.Minute)

	assert.Equal(t, StatusDegraded, check(context.Background()), "nothing cached yet")
	age = 30 * time.Second
	assert.Equal(t, StatusOK, check(context.Background()))
	age = 10 * time.Minute
	assert.Equal(t, StatusDegraded, check(context.Background()))
}
