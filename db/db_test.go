package db

import (
	"PollTally/config"
	"PollTally/model"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// 需要 POLLTALLY_TEST_MYSQL_HOST 指向可用的 mysql，否则跳过
func TestGormStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MySQL integration test")
	}
	host := os.Getenv("POLLTALLY_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("POLLTALLY_TEST_MYSQL_HOST not set")
	}

	gdb, err := OpenDB(config.DbConf{
		Host:        host,
		Port:        "3306",
		User:        "root",
		Password:    os.Getenv("POLLTALLY_TEST_MYSQL_PASSWORD"),
		Dbname:      "polltally_test",
		MaxIdleConn: 2,
		MaxOpenConn: 4,
		MaxIdleTime: 60,
	})
	if err != nil {
		t.Skip("MySQL not available:", err)
	}
	gdb.Where("1 = 1").Delete(&model.Entry{})

	s := NewGormStorage(gdb)
	t.Cleanup(func() {
		gdb.Where("1 = 1").Delete(&model.Entry{})
		s.Close()
	})

	runStorageContract(t, s)
	assert.NoError(t, s.Ping(context.Background()))
}
