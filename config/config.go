package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// 支持的存储后端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

// ErrInvalidConfig 配置不合法
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	config              GlobalConfig // 全局配置文件
	configMu            sync.RWMutex
	updateDebounceTimer *time.Timer // 配置更新防抖动
)

const debounceDuration = 1 * time.Second

type GlobalConfig struct {
	Storage     StorageConf `yaml:"storage" mapstructure:"storage"` // 存储后端配置
	DbConfig    DbConf      `yaml:"db" mapstructure:"db"`           // 数据库配置
	RedisConfig RedisConf   `yaml:"redis" mapstructure:"redis"`     // redis 配置
	Server      ServerConf  `yaml:"server" mapstructure:"server"`   // http 服务配置
	Kafka       KafkaConf   `yaml:"kafka" mapstructure:"kafka"`     // 投票事件推送
	Log         LogConf     `yaml:"log" mapstructure:"log"`         // 日志
}

type StorageConf struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // memory | redis | mysql
}

type DbConf struct {
	Host        string `yaml:"host" mapstructure:"host"`                   // 主机地址
	Port        string `yaml:"port" mapstructure:"port"`                   // 端口号
	User        string `yaml:"user" mapstructure:"user"`                   // 用户名
	Password    string `yaml:"password" mapstructure:"password"`           // 密码
	Dbname      string `yaml:"dbname" mapstructure:"dbname"`               // 数据库名
	MaxIdleConn int    `yaml:"max_idle_conn" mapstructure:"max_idle_conn"` // 最大空闲连接数
	MaxOpenConn int    `yaml:"max_open_conn" mapstructure:"max_open_conn"` // 最大打开连接数
	MaxIdleTime int64  `yaml:"max_idle_time" mapstructure:"max_idle_time"` // 连接最大空闲时间
}

// RedisConf 配置
type RedisConf struct {
	Host     string        `yaml:"rhost" mapstructure:"rhost"`       // db主机地址
	Port     int           `yaml:"rport" mapstructure:"rport"`       // db端口
	DB       int           `yaml:"rdb" mapstructure:"rdb"`           // 数据库
	PassWord string        `yaml:"passwd" mapstructure:"passwd"`     // 密码
	PoolSize int           `yaml:"poolsize" mapstructure:"poolsize"` // 连接池大小，即最大连接数
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`           // 键过期时间，0 表示不过期
	LockTTL  time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"` // 投票锁过期时间，需覆盖一次读-改-写
}

type ServerConf struct {
	Port      int `yaml:"port" mapstructure:"port"`             // graphql 端口
	PprofPort int `yaml:"pprof_port" mapstructure:"pprof_port"` // pprof 端口，0 表示不开启
}

type KafkaConf struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Brokers string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string `yaml:"topic" mapstructure:"topic"`
}

type LogConf struct {
	Level string `yaml:"level" mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("redis.rhost", "127.0.0.1")
	v.SetDefault("redis.rport", 6379)
	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("redis.lock_ttl", "500ms")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.max_idle_conn", 10)
	v.SetDefault("db.max_open_conn", 100)
	v.SetDefault("db.max_idle_time", 3600)
	v.SetDefault("server.port", 9090)
	v.SetDefault("server.pprof_port", 6060)
	v.SetDefault("kafka.topic", "poll-votes")
	v.SetDefault("log.level", "info")
}

// GetGlobalConf 返回最近一次 Load 的结果
func GetGlobalConf() *GlobalConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	c := config
	return &c
}

// Load 读取配置文件并填充全局配置。path 为空时按默认目录查找 config.yml，
// 找不到文件则只使用默认值；显式指定的 path 读取失败会返回错误。
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
	}

	if err := v.ReadInConfig(); err != nil { // 读取配置信息
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config file: %v", ErrInvalidConfig, err)
		}
		log.Info("no config file found, using defaults")
	}

	var c GlobalConfig
	if err := v.Unmarshal(&c); err != nil { // 将配置信息反序列化
		return nil, fmt.Errorf("%w: unmarshal config: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	config = c
	configMu.Unlock()
	log.WithField("backend", c.Storage.Backend).Debugf("config === %+v", c)

	if v.ConfigFileUsed() != "" {
		watch(v)
	}
	return &c, nil
}

// watch 监听配置文件变化，目前只热更新日志级别
func watch(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if updateDebounceTimer != nil {
			updateDebounceTimer.Stop()
		}
		updateDebounceTimer = time.AfterFunc(debounceDuration, func() {
			level := v.GetString("log.level")
			if err := ApplyLogLevel(level); err != nil {
				log.WithError(err).Warn("ignoring log level from reloaded config")
				return
			}
			configMu.Lock()
			config.Log.Level = level
			configMu.Unlock()
			log.WithField("file", e.Name).Info("config reloaded")
		})
	})
	v.WatchConfig() //监听配置文件的变化
}

// ApplyLogLevel 设置 logrus 全局日志级别
func ApplyLogLevel(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, level)
	}
	log.SetLevel(lvl)
	return nil
}

// Validate 检查配置是否合法
func (c *GlobalConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisConfig.Host == "" || c.RedisConfig.Port <= 0 {
			return fmt.Errorf("%w: redis backend needs rhost and rport", ErrInvalidConfig)
		}
		if c.RedisConfig.LockTTL < 0 {
			return fmt.Errorf("%w: redis lock_ttl must not be negative", ErrInvalidConfig)
		}
	case BackendMySQL:
		if c.DbConfig.Host == "" || c.DbConfig.User == "" || c.DbConfig.Dbname == "" {
			return fmt.Errorf("%w: mysql backend needs host, user and dbname", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Kafka.Enabled && (c.Kafka.Brokers == "" || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka needs brokers and topic", ErrInvalidConfig)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// RedisAddr 拼接 redis 地址
func (c RedisConf) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN 拼接 mysql 数据源
func (c DbConf) DSN() string {
	return fmt.Sprintf("%s:%s@(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Dbname)
}
