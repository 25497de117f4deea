package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: redis
redis:
  rhost: redis.local
  rport: 6380
  rdb: 2
  ttl: 90s
server:
  port: 8080
log:
  level: debug
`)
	defer log.SetLevel(log.InfoLevel)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, c.Storage.Backend)
	assert.Equal(t, "redis.local:6380", c.RedisConfig.RedisAddr())
	assert.Equal(t, 2, c.RedisConfig.DB)
	assert.Equal(t, 90*time.Second, c.RedisConfig.TTL)
	assert.Equal(t, 500*time.Millisecond, c.RedisConfig.LockTTL, "default lock ttl")
	assert.Equal(t, 10, c.RedisConfig.PoolSize, "default pool size")
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 6060, c.Server.PprofPort)
	assert.Equal(t, "debug", c.Log.Level)

	assert.Equal(t, BackendRedis, GetGlobalConf().Storage.Backend)
}

func TestLoadBundledConfig(t *testing.T) {
	c, err := Load("config.yml")
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, c.Storage.Backend)
	assert.False(t, c.Kafka.Enabled)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	base := func() GlobalConfig {
		return GlobalConfig{
			Storage: StorageConf{Backend: BackendMemory},
			Log:     LogConf{Level: "info"},
		}
	}

	c := base()
	assert.NoError(t, c.Validate())

	c = base()
	c.Storage.Backend = "etcd"
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = base()
	c.Storage.Backend = BackendRedis
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
	c.RedisConfig = RedisConf{Host: "localhost", Port: 6379}
	assert.NoError(t, c.Validate())
	c.RedisConfig.LockTTL = -time.Second
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = base()
	c.Storage.Backend = BackendMySQL
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
	c.DbConfig = DbConf{Host: "localhost", Port: "3306", User: "root", Dbname: "polltally"}
	assert.NoError(t, c.Validate())

	c = base()
	c.Kafka.Enabled = true
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)

	c = base()
	c.Log.Level = "loud"
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}

func TestDSN(t *testing.T) {
	c := DbConf{Host: "db", Port: "3306", User: "u", Password: "p", Dbname: "polls"}
	assert.Equal(t, "u:p@(db:3306)/polls?charset=utf8mb4&parseTime=True&loc=Local", c.DSN())
}

func TestApplyLogLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	require.NoError(t, ApplyLogLevel("warn"))
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	assert.ErrorIs(t, ApplyLogLevel("chatty"), ErrInvalidConfig)
}
