package model

import (
	"time"
)

// Entry 定义键值存储模型，每一行对应存储介质中的一个键
type Entry struct {
	ID        uint      `gorm:"primarykey"`
	Key       string    `gorm:"column:entry_key;size:191;uniqueIndex"` // 存储键，设置为唯一
	Value     string    `gorm:"column:entry_value;type:text"`          // 存储值，原样保存字符串
	UpdatedAt time.Time // 最后写入时间
}

// TableName 指定表名
func (Entry) TableName() string {
	return "poll_entries"
}
