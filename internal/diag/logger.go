package diag

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger: 组件/阶段事件日志（comp + stage），底层为 zap JSON core。
// 零值与 nil 均可安全调用（no-op）。
type Logger struct {
	z    *zap.Logger
	sink *RotatingFile
}

// NewLogger 按 level 初始化，写入 logs/ 目录，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := newLogger(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 写入任意 io.Writer（测试或 --log-file=- 时使用）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	return newLogger(zapcore.AddSync(w), corrID, level)
}

// Nop 返回丢弃一切事件的 Logger。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func newLogger(ws zapcore.WriteSyncer, corrID, level string) *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeTime:     utcRFC3339,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(ws), ParseLevel(level))
	return &Logger{z: zap.New(core).With(zap.String("corr_id", corrID))}
}

func utcRFC3339(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
	pae.AppendString(t.UTC().Format(time.RFC3339))
}

// ParseLevel 未知取值回落到 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap 暴露底层 zap.Logger（nil 安全）。
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

func (l *Logger) emit(lv zapcore.Level, msg string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	if ce := l.z.Check(lv, msg); ce != nil {
		ce.Write(fields...)
	}
}

func eventFields(comp, stage, shard string, kv map[string]string) []zap.Field {
	fs := make([]zap.Field, 0, 4)
	fs = append(fs, zap.String("comp", comp), zap.String("stage", stage))
	if shard != "" {
		fs = append(fs, zap.String("shard", shard))
	}
	if len(kv) > 0 {
		fs = append(fs, zap.Any("kv", kv))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWith 记录带 shard 的 start。
func (l *Logger) StartWith(comp, msg, shard string) *Timer {
	return l.StartWithKV(comp, msg, shard, nil)
}

// StartWithKV 记录带 shard 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, shard string, kv map[string]string) *Timer {
	l.emit(zapcore.InfoLevel, msg, eventFields(comp, "start", shard, kv)...)
	return &Timer{l: l, comp: comp, shard: shard, t0: time.Now()}
}

// DebugStart 仅在 level=debug 时输出。
func (l *Logger) DebugStart(comp, msg, shard string, kv map[string]string) {
	l.emit(zapcore.DebugLevel, msg, eventFields(comp, "start", shard, kv)...)
}

// Warn 记录可恢复的异常（例如被跳过的编辑组）。
func (l *Logger) Warn(comp, code, msg, shard string, kv map[string]string) {
	fs := eventFields(comp, "skip", shard, kv)
	fs = append(fs, zap.String("code", code))
	l.emit(zapcore.WarnLevel, msg, fs...)
}

// DebugSkip 记录单条被跳过的记录（仅 debug；量大时避免刷屏）。
func (l *Logger) DebugSkip(comp, code, msg, shard string, kv map[string]string) {
	fs := eventFields(comp, "skip", shard, kv)
	fs = append(fs, zap.String("code", code))
	l.emit(zapcore.DebugLevel, msg, fs...)
}

// Progress 周期性进度事件。
func (l *Logger) Progress(comp, msg, shard string, kv map[string]string) {
	l.emit(zapcore.InfoLevel, msg, eventFields(comp, "progress", shard, kv)...)
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 shard。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, shard string) {
	l.ErrorWithKV(comp, code, msg, durSince, shard, nil)
}

// ErrorWithKV 支持附带键值对。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, shard string, kv map[string]string) {
	fs := eventFields(comp, "error", shard, kv)
	fs = append(fs, zap.String("code", code))
	if durSince != nil {
		fs = append(fs, zap.Int64("dur_ms", time.Since(*durSince).Milliseconds()))
	}
	l.emit(zapcore.ErrorLevel, msg, fs...)
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	fs := eventFields(comp, "finish", "", nil)
	fs = append(fs, zap.Int64("dur_ms", time.Since(start).Milliseconds()), zap.Int64("count", count))
	l.emit(zapcore.InfoLevel, msg, fs...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	shard string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录带键值的 finish（分片汇总计数走这里）。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	fs := eventFields(t.comp, "finish", t.shard, kv)
	fs = append(fs, zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()), zap.Int64("count", count))
	t.l.emit(zapcore.InfoLevel, msg, fs...)
}

// Since 返回起点时间（供 Error 计算 dur_ms）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	t0 := t.t0
	return &t0
}
