// Package logger はzerologによる構造化ロガーを構成します。
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config ロガー設定
type Config struct {
	Level  string    // debug, info, warn, error
	Pretty bool      // 開発用の見やすいコンソール出力
	Output io.Writer // nilなら標準出力
}

// ParseLevel ログレベル文字列を変換（未知の値はinfo）
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New 構造化ロガーを作成
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	return zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "perfoptima-api").
		Logger()
}

// SetGlobalLogger パッケージレベルのロガーを差し替える
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
