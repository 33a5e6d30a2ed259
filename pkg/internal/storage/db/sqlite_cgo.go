//go:build !no_sqlite && cgo

package db

import (
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/octavia/pkg/configs"
)

// sqliteBusyTimeoutMS 上传与回收并发写库时等待锁的毫秒数.
const sqliteBusyTimeoutMS = 5000

// cgoSQLiteDSN 为普通文件路径启用 WAL 与忙等待；内存库或已带参数的 DSN 原样返回.
func cgoSQLiteDSN(dsn string) string {
	if dsn == "" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "?") {
		return dsn
	}

	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	return dsn + "?_journal_mode=WAL&_busy_timeout=" + strconv.Itoa(sqliteBusyTimeoutMS)
}

// createSQLiteDialector 创建SQLite dialector (CGo版本).
func createSQLiteDialector(dsn string) gorm.Dialector {
	return sqlite.Open(cgoSQLiteDSN(dsn))
}

// 注册SQLite dialector工厂函数 (CGo版本).
func init() {
	RegisterDialectorFactory(configs.SQLite, createSQLiteDialector)
}
