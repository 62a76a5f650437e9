// Package storetest 为测试准备一个带 WES 表结构的 SQLite 数据库
package storetest

import (
	"database/sql"
	_ "embed"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

//go:embed schema.sql
var schema string

// Open 在 t.TempDir() 中创建数据库并建表，测试结束时自动关闭
// 返回的 DSN 可以交给 store.Open 再打开一次
func Open(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "wes.db") + "?_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db, dsn
}

// Exec 执行一条种子数据语句
func Exec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}
