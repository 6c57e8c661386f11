//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benefits/internal/identity/revocation"
	"benefits/pkg/testutil/containers"
)

type RedisTRLSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	trl   *revocation.RedisTRL
}

func TestRedisTRLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTRLSuite))
}

func (s *RedisTRLSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.trl = revocation.NewRedisTRL(s.redis.Client)
}

func (s *RedisTRLSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisTRLSuite) TestRevokeAndCheck() {
	ctx := context.Background()
	jti := uuid.NewString()

	revoked, err := s.trl.IsTokenRevoked(ctx, jti)
	s.Require().NoError(err)
	s.False(revoked)

	s.Require().NoError(s.trl.RevokeToken(ctx, jti, time.Minute))
	revoked, err = s.trl.IsTokenRevoked(ctx, jti)
	s.Require().NoError(err)
	s.True(revoked)

	ttl, err := s.redis.Client.TTL(ctx, "trl:jti:"+jti).Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)
}

func (s *RedisTRLSuite) TestEntryExpiresWithToken() {
	ctx := context.Background()
	jti := uuid.NewString()
	s.Require().NoError(s.trl.RevokeToken(ctx, jti, time.Second))

	s.Eventually(func() bool {
		revoked, err := s.trl.IsTokenRevoked(ctx, jti)
		return err == nil && !revoked
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisTRLSuite) TestRejectsNonPositiveTTL() {
	s.Error(s.trl.RevokeToken(context.Background(), uuid.NewString(), 0))
}

type PostgresTRLSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	now      time.Time
	trl      *revocation.PostgresTRL
}

func TestPostgresTRLSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresTRLSuite))
}

func (s *PostgresTRLSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.trl = revocation.NewPostgresTRL(s.postgres.DB, revocation.WithPostgresClock(func() time.Time { return s.now }))
}

func (s *PostgresTRLSuite) SetupTest() {
	s.now = time.Now()
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "token_revocations"))
}

func (s *PostgresTRLSuite) TestRevokeCheckAndPurge() {
	ctx := context.Background()
	short, long := uuid.NewString(), uuid.NewString()
	s.Require().NoError(s.trl.RevokeToken(ctx, short, time.Minute))
	s.Require().NoError(s.trl.RevokeToken(ctx, long, time.Hour))

	revoked, err := s.trl.IsTokenRevoked(ctx, short)
	s.Require().NoError(err)
	s.True(revoked)

	s.now = s.now.Add(2 * time.Minute)
	revoked, err = s.trl.IsTokenRevoked(ctx, short)
	s.Require().NoError(err)
	s.False(revoked, "entries stop counting once the token has expired")

	purged, err := s.trl.Purge(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), purged)

	revoked, err = s.trl.IsTokenRevoked(ctx, long)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *PostgresTRLSuite) TestRevokingTwiceExtendsTheEntry() {
	ctx := context.Background()
	jti := uuid.NewString()
	s.Require().NoError(s.trl.RevokeToken(ctx, jti, time.Minute))
	s.Require().NoError(s.trl.RevokeToken(ctx, jti, time.Hour))

	s.now = s.now.Add(10 * time.Minute)
	revoked, err := s.trl.IsTokenRevoked(ctx, jti)
	s.Require().NoError(err)
	s.True(revoked)
}
