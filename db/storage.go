package db

import (
	"context"
	"errors"
)

// ErrLockTimeout 在限定时间内没有拿到锁
var ErrLockTimeout = errors.New("storage lock timeout")

// Storage 字符串键值存储介质，只暴露投票逻辑需要的三个原语
type Storage interface {
	// Get 读取 key 对应的值，ok 为 false 表示键不存在
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Locker 可选能力：对某个键加互斥锁，让读-改-写成为一个整体
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Pinger 可选能力：检查存储是否可用，供健康检查使用
type Pinger interface {
	Ping(ctx context.Context) error
}
