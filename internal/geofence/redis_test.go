package geofence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fieldTracker/internal/geofence"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisPresenceTestSuite для интеграционных тестов с Redis
type RedisPresenceTestSuite struct {
	suite.Suite
	container testcontainers.Container
	client    *redis.Client
	ctx       context.Context
}

func (s *RedisPresenceTestSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(s.ctx)
	require.NoError(s.T(), err)
	port, err := container.MappedPort(s.ctx, "6379")
	require.NoError(s.T(), err)

	s.client = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(s.T(), s.client.Ping(s.ctx).Err())
}

func (s *RedisPresenceTestSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
	if s.container != nil {
		s.container.Terminate(s.ctx)
	}
}

func (s *RedisPresenceTestSuite) SetupTest() {
	s.Require().NoError(s.client.FlushDB(s.ctx).Err())
}

// TestSwap тестирует обмен состоянием через GETSET
func (s *RedisPresenceTestSuite) TestSwap() {
	presence := geofence.NewRedisPresence(s.client, time.Hour)

	_, known, err := presence.Swap(s.ctx, "presence:w:l", true)
	s.Require().NoError(err)
	s.False(known)

	previous, known, err := presence.Swap(s.ctx, "presence:w:l", false)
	s.Require().NoError(err)
	s.True(known)
	s.True(previous)

	previous, known, err = presence.Swap(s.ctx, "presence:w:l", false)
	s.Require().NoError(err)
	s.True(known)
	s.False(previous)

	ttl, err := s.client.TTL(s.ctx, "presence:w:l").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

// TestDetectorOverRedis тестирует детектор с общим хранилищем у двух экземпляров
func (s *RedisPresenceTestSuite) TestDetectorOverRedis() {
	first := geofence.NewRedisPresence(s.client, time.Hour)
	second := geofence.NewRedisPresence(s.client, time.Hour)

	_, _, err := first.Swap(s.ctx, "presence:w:shared", true)
	s.Require().NoError(err)

	previous, known, err := second.Swap(s.ctx, "presence:w:shared", true)
	s.Require().NoError(err)
	s.True(known)
	s.True(previous)
}

func TestRedisPresenceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("интеграционные тесты пропущены в режиме -short")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(RedisPresenceTestSuite))
}
