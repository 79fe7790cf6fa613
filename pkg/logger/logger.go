// 文件: pkg/logger/logger.go
// zap 日志构造
//
// 显式构造、显式传递，不做包级单例。

package logger

import (
	"go.uber.org/zap"
)

// New 按环境构造 logger
// production 之外给开发版 (彩色等级 + 控制台编码)
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
