package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Cleanup 进程退出前的一项收尾工作
type Cleanup struct {
	Name string
	Fn   func() error
}

// GracefulShutdown 阻塞直到收到 SIGINT/SIGTERM 或 ctx 结束，然后按注册的逆序执行收尾工作。
// 单项失败只记录日志，后面的照常执行。
func GracefulShutdown(ctx context.Context, cleanups ...Cleanup) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	case <-ctx.Done():
		log.Info("shutting down")
	}

	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := c.Fn(); err != nil {
			log.WithError(err).WithField("step", c.Name).Error("cleanup failed")
			continue
		}
		log.WithField("step", c.Name).Debug("cleanup done")
	}
}
