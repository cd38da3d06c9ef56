// Package logging 按配置构建 zap 日志。
package logging

import (
	"fmt"

	"github.com/JOEYBAGOFBITCOINS/Unit3ipechokey/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 构建根 logger，名为 echokey。Development 模式输出彩色控制台格式。
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return l.Named("echokey"), nil
}
