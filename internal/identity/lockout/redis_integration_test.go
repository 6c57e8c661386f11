//go:build integration

package lockout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"benefits/internal/identity/lockout"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/testutil/containers"
)

type RedisLockoutSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	guard *lockout.Guard
}

func TestRedisLockoutSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockoutSuite))
}

func (s *RedisLockoutSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.guard = lockout.New(lockout.NewRedis(s.redis.Client),
		lockout.WithConfig(lockout.Config{Attempts: 2, Window: time.Minute, LockFor: 2 * time.Second}))
}

func (s *RedisLockoutSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockoutSuite) fail(key string) {
	ctx := context.Background()
	s.Require().NoError(s.guard.Begin(ctx, key))
	s.Require().NoError(s.guard.Fail(ctx, key))
}

func (s *RedisLockoutSuite) TestLocksAndExpires() {
	ctx := context.Background()
	s.fail("start:AB1")

	ttl, err := s.redis.Client.PTTL(ctx, "lockout:fail:start:AB1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)

	s.fail("start:AB1")
	s.True(dErrors.HasCode(s.guard.Begin(ctx, "start:AB1"), dErrors.CodeTooManyRequests))

	exists, err := s.redis.Client.Exists(ctx, "lockout:fail:start:AB1").Result()
	s.Require().NoError(err)
	s.Zero(exists)

	s.Eventually(func() bool {
		return s.guard.Begin(ctx, "start:AB1") == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisLockoutSuite) TestReservationsCapInFlightAttempts() {
	ctx := context.Background()
	s.Require().NoError(s.guard.Begin(ctx, "verify:x"))
	s.Require().NoError(s.guard.Begin(ctx, "verify:x"))
	s.True(dErrors.HasCode(s.guard.Begin(ctx, "verify:x"), dErrors.CodeTooManyRequests))

	s.Require().NoError(s.guard.Release(ctx, "verify:x"))
	s.NoError(s.guard.Begin(ctx, "verify:x"))
}

func (s *RedisLockoutSuite) TestClear() {
	ctx := context.Background()
	s.fail("verify:x")
	s.fail("verify:x")
	s.Require().NoError(s.guard.Clear(ctx, "verify:x"))
	s.NoError(s.guard.Begin(ctx, "verify:x"))
}
