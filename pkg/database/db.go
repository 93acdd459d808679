// Package database はSQLiteへの接続とスキーマ初期化を提供します。
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// MemoryPath はテスト用のインメモリDBを示すパス
const MemoryPath = ":memory:"

//go:embed schema.sql
var schema string

// DB はコネクションプールとDB名（ログ用）を保持します。
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config はDB接続設定です。
type Config struct {
	Path string
	Name string // ログ用の名前
}

// New はSQLiteを開き、疎通確認とスキーマ作成を行います。
func New(cfg Config) (*DB, error) {
	if cfg.Name == "" {
		cfg.Name = "perfoptima"
	}

	connStr := cfg.Path
	if cfg.Path != MemoryPath {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
		connStr = buildConnectionString(absPath)
	}

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}
	configureConnectionPool(conn, cfg.Path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	db := &DB{conn: conn, path: cfg.Path, name: cfg.Name}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// buildConnectionString WALモードと同期設定を付けた接続文字列
func buildConnectionString(path string) string {
	connStr := path + "?_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	return connStr
}

// configureConnectionPool コネクションプールの設定
// インメモリDBは接続ごとに別DBになるため1接続に固定する。
func configureConnectionPool(conn *sql.DB, path string) {
	if path == MemoryPath {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
		return
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
}

// Migrate はスキーマを適用します（何度実行しても安全）。
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema for %s: %w", db.name, err)
	}
	return nil
}

// Close はDB接続を閉じます。
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path はDBファイルのパスを返します。
func (db *DB) Path() string {
	return db.path
}

// HealthCheck はDBに疎通できるか確認します。
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database %s health check failed: %w", db.name, err)
	}
	return nil
}
