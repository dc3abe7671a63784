package storage

import (
	"context"
	"errors"
	"time"

	"pagepilot/internal/ctxkeys"
	applog "pagepilot/internal/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultGormLevel = gormlogger.Warn
	slowQuery        = 200 * time.Millisecond
)

// GormLogger 将 GORM 日志转发到应用日志，附带轮次追踪ID
type GormLogger struct {
	log   applog.Logger
	level gormlogger.LogLevel
}

// NewGormLogger 创建 GORM 日志适配器
func NewGormLogger(l applog.Logger) *GormLogger {
	return &GormLogger{log: l, level: gormlogger.Info}
}

// LogMode 返回指定级别的副本
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.log.Info(msg, g.fields(ctx, "data", data)...)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(msg, g.fields(ctx, "data", data)...)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.log.Error(msg, g.fields(ctx, "data", data)...)
	}
}

// Trace 记录 SQL；记录不存在不视为错误
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := g.fields(ctx, "sql", sql, "rows", rows, "elapsedMs", elapsed.Milliseconds())

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		g.log.Error("SQL执行错误", append(fields, "error", err.Error())...)
	case elapsed > slowQuery && g.level >= gormlogger.Warn:
		g.log.Warn("慢SQL", append(fields, "threshold", slowQuery.String())...)
	case g.level >= gormlogger.Info:
		g.log.Debug("SQL执行", fields...)
	}
}

func (g *GormLogger) fields(ctx context.Context, kv ...any) []any {
	if id := ctxkeys.TraceID(ctx); id != "" {
		return append([]any{"traceId", id}, kv...)
	}
	return kv
}
