package db

import (
	"PollTally/config"
	"PollTally/model"
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// OpenDB 初始化数据库连接并迁移表结构
func OpenDB(mysqlConf config.DbConf) (*gorm.DB, error) {
	newLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), // io writer（日志输出的地方）
		logger.Config{
			SlowThreshold: time.Millisecond * 2000, // 慢SQL阈值
			LogLevel:      logger.Warn,             // 日志级别
			Colorful:      true,                    // 彩色打印
		},
	)
	// 使用gorm.Open创建数据库连接
	gdb, err := gorm.Open(mysql.Open(mysqlConf.DSN()), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(mysqlConf.MaxIdleConn)                                        // 最大空闲连接
	sqlDB.SetMaxOpenConns(mysqlConf.MaxOpenConn)                                        // 最大打开连接
	sqlDB.SetConnMaxLifetime(time.Duration(mysqlConf.MaxIdleTime * int64(time.Second))) // 最大空闲时间（s）

	if err := gdb.AutoMigrate(&model.Entry{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", model.Entry{}.TableName(), err)
	}
	return gdb, nil
}

// GormStorage 基于关系数据库的存储后端，每个键一行
type GormStorage struct {
	db *gorm.DB
}

var (
	_ Storage = (*GormStorage)(nil)
	_ Pinger  = (*GormStorage)(nil)
)

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

func (s *GormStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var entry model.Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set 键存在则覆盖值，不存在则插入
func (s *GormStorage) Set(ctx context.Context, key, value string) error {
	entry := model.Entry{Key: key, Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
	}).Create(&entry).Error
}

func (s *GormStorage) Remove(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&model.Entry{}).Error
}

// Ping 检查数据库连接
func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接池
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
