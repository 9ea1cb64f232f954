package db

import (
	"context"
	"net"
	"testing"

	"benirage/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "stories",
		DBPassword: "p@ss:word",
		DBHost:     "db.internal",
		DBPort:     "3307",
		DBName:     "benirage",
	}

	parsed, err := mysql.ParseDSN(DSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, "stories", parsed.User)
	assert.Equal(t, "p@ss:word", parsed.Passwd)
	assert.Equal(t, "tcp", parsed.Net)
	assert.Equal(t, "db.internal:3307", parsed.Addr)
	assert.Equal(t, "benirage", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Contains(t, DSN(cfg), "charset=utf8mb4")
}

func TestCheckRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, CheckRedis(context.Background(), client))
	assert.False(t, mr.Exists("benirage:healthcheck"))
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	client, err := ConnectRedis(context.Background(), &config.Config{RedisHost: host, RedisPort: port})
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, mr.Addr(), client.Options().Addr)

	mr.Close()
	_, err = ConnectRedis(context.Background(), &config.Config{RedisHost: host, RedisPort: port})
	assert.Error(t, err)
}
