package main

import (
	"PollTally/config"
	"PollTally/control"
	"PollTally/db"
	"PollTally/graphql"
	"PollTally/utils"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"runtime"
	"time"

	"github.com/graphql-go/handler"
	log "github.com/sirupsen/logrus"
)

// newStorage 根据配置创建存储后端，返回的 closer 在退出时调用
func newStorage(ctx context.Context, c *config.GlobalConfig) (db.Storage, func() error, error) {
	switch c.Storage.Backend {
	case config.BackendRedis:
		client, err := db.NewRedisClient(ctx, c.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		s := db.NewRedisStorage(client, c.RedisConfig.TTL, c.RedisConfig.LockTTL)
		return s, s.Close, nil
	case config.BackendMySQL:
		gdb, err := db.OpenDB(c.DbConfig)
		if err != nil {
			return nil, nil, err
		}
		s := db.NewGormStorage(gdb)
		return s, s.Close, nil
	case config.BackendMemory:
		return db.NewMemoryStorage(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalidConfig, c.Storage.Backend)
}

// healthHandler 存储支持 Ping 时检查连通性，不可用返回 503
func healthHandler(storage db.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger, ok := storage.(db.Pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				log.WithError(err).Warn("health check failed")
				http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}
}

func main() {
	configPath := flag.String("config", "", "path to config.yml (default: search ., ./config, ../config)")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := config.ApplyLogLevel(conf.Log.Level); err != nil {
		log.WithError(err).Fatal("failed to set log level")
	}

	ctx := context.Background()
	storage, closeStorage, err := newStorage(ctx, conf)
	if err != nil {
		log.WithError(err).WithField("backend", conf.Storage.Backend).Fatal("failed to open storage")
	}
	cleanups := []utils.Cleanup{{Name: "storage", Fn: closeStorage}}

	var opts []control.Option
	if conf.Kafka.Enabled {
		notifier, err := utils.NewKafkaNotifier(conf.Kafka.Brokers, conf.Kafka.Topic)
		if err != nil {
			log.WithError(err).Fatal("failed to create kafka notifier")
		}
		opts = append(opts, control.WithNotifier(notifier))
		cleanups = append(cleanups, utils.Cleanup{Name: "kafka", Fn: func() error {
			notifier.Close()
			return nil
		}})
	}
	svc := control.NewPollService(storage, opts...)

	// 定义GraphQL服务可用的查询和变更操作
	schema, err := graphql.NewGraphQLSchema(svc)
	if err != nil {
		log.WithError(err).Fatal("failed to create new schema")
	}

	if conf.Server.PprofPort > 0 {
		go func() {
			runtime.SetBlockProfileRate(1)     // 开启对阻塞操作的跟踪，block
			runtime.SetMutexProfileFraction(1) // 开启对锁调用的跟踪，mutex
			addr := fmt.Sprintf(":%d", conf.Server.PprofPort)
			log.WithField("addr", addr).Info("pprof is running")
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.WithError(err).Warn("pprof server stopped")
			}
		}()
	}

	// handler会解析请求，执行对应的GraphQL操作，并返回结果
	h := handler.New(&handler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: true,
	})
	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.Handle("/healthz", healthHandler(storage))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Server.Port),
		Handler: mux,
	}
	cleanups = append(cleanups, utils.Cleanup{Name: "http", Fn: func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}})

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("Now server is running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err, ok := <-serverErr; ok {
			log.WithError(err).Error("server failed")
			cancel()
		}
	}()
	utils.GracefulShutdown(runCtx, cleanups...)
	cancel()
}
