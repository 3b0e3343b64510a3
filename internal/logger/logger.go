// Package logger wraps zap with the rotating-file writers this project ships
// with: a size/age/backup-count rotator (NewSizeRotated) and a calendar-based
// rotator (NewProductionRotateByTime). Every other package logs through
// here rather than through the standard log package.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors zapcore.Level so callers never need to import zap directly.
type Level = zapcore.Level

const (
	DebugLevel Level = zapcore.DebugLevel
	InfoLevel  Level = zapcore.InfoLevel
	WarnLevel  Level = zapcore.WarnLevel
	ErrorLevel Level = zapcore.ErrorLevel
)

// Logger is a thin handle around a zap.SugaredLogger plus a mutable level,
// so SetLevel can change verbosity on an already-constructed logger.
type Logger struct {
	sugar *zap.SugaredLogger
	atom  zap.AtomicLevel
}

// New builds a Logger that writes JSON-free, human-readable lines to w at
// the given starting level.
func New(w io.Writer, level Level) *Logger {
	atom := zap.NewAtomicLevelAt(level)
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(w), atom)
	return &Logger{
		sugar: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(),
		atom:  atom,
	}
}

// NewProductionRotateByTime returns a calendar-rotated writer for path,
// keeping 7 days of history. This is the file sink config.Parse installs
// when rotation is enabled; otherwise logs go to stderr.
func NewProductionRotateByTime(path string) io.Writer {
	w, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(7*24*time.Hour),
	)
	if err != nil {
		// Falling back to stderr keeps the process alive; a broken log sink
		// should never be fatal to a connection-manager client.
		return os.Stderr
	}
	return w
}

// NewSizeRotated returns a size/backup-count rotated writer for path.
func NewSizeRotated(path string, maxSizeMB, maxBackups, maxAgeDays int) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

var (
	mu      sync.RWMutex
	current = New(os.Stderr, InfoLevel)
)

// ReplaceDefault swaps the package-level logger used by the Debugf/Infof/...
// helpers below.
func ReplaceDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	current = l
}

func get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetLevel adjusts the verbosity of the current default logger.
func SetLevel(level Level) {
	get().atom.SetLevel(level)
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	_ = get().sugar.Sync()
}

func Debug(args ...interface{})                  { get().sugar.Debug(args...) }
func Info(args ...interface{})                   { get().sugar.Info(args...) }
func Warn(args ...interface{})                   { get().sugar.Warn(args...) }
func Error(args ...interface{})                  { get().sugar.Error(args...) }
func Debugf(template string, args ...interface{}) { get().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { get().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { get().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { get().sugar.Errorf(template, args...) }
